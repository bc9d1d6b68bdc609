// Package memory implements the scoped variable model dialogs read and write.
//
// Paths are first expanded by a PathResolver ($foo becomes dialog.foo, @city
// becomes turn.recognized.entities.city[0]) and then dispatched on their
// leading segment to a Scope. The remaining path uses dotted keys, [n] list
// indices and ['quoted keys'].
//
// Reads never fail: a missing value reports ok == false. Writes create
// missing intermediate maps and fail with core.ErrReadOnlyScope on the
// settings and class scopes.
package memory
