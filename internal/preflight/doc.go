// Package preflight provides readiness checks for the paths, binaries and
// services courtclip depends on.
//
// These checks run in two contexts:
//   - The finishing command calls RunAll before planning a batch. If any
//     check fails the run stops before touching storage.
//   - The CLI "courtclip check" command prints every check, including the
//     storage and orchestrator probes that need live collaborators.
package preflight
