package preview

import "git.home.luguber.info/inful/pagesmith/internal/model"

// Ref is how a project descriptor points at its stored page. Descriptors
// written before pages carried IDs only know the page name.
type Ref interface {
	isRef()
}

// WithReference points at a page by ID.
type WithReference struct {
	PageID string
}

// LegacyByName points at a page through its (project, name) back-reference.
type LegacyByName struct {
	ProjectID string
	PageName  string
}

func (WithReference) isRef() {}
func (LegacyByName) isRef()  {}

// RefFor converts a descriptor of projectID into a Ref.
func RefFor(projectID string, d model.PageRef) Ref {
	if d.PageID != "" {
		return WithReference{PageID: d.PageID}
	}
	return LegacyByName{ProjectID: projectID, PageName: d.PageName}
}
