// Package rewrite normalizes intra-site references in generated markup to the
// canonical preview addressing scheme:
//
//	/preview/{projectID}             the project's index page
//	/preview/{projectID}/{pageName}  any other planned page
//
// Rewriting is scoped to href values, <img> src/data-src values and string
// literals in location assignments. Everything else passes through
// byte-for-byte. Output that is already canonical is never touched, so
// Rewrite is idempotent.
//
// Rules, applied in order to each candidate value:
//
//  1. /preview/{pid}/index[.html|.htm] collapses to the project root.
//  2. A last path segment of <known>.html or <known>.htm becomes canonical,
//     keeping any ?query or #fragment.
//  3. Home tokens (".", "./", "/", "index", "./index") become the root.
//  4. A bare known page name (no "/", ":", "#" or "?") becomes canonical with
//     its declared casing.
//  5. Rules 2-4 also apply inside location assignments and
//     location.assign/replace calls.
//  6. Images under the local asset prefix become placeholder-service URLs.
package rewrite
