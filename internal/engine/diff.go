package engine

import (
	"sort"
	"strconv"

	"github.com/mvilaca/triage/pkg/api"
)

// ComputeDiffs walks two snapshots structurally and returns the field-level
// changes from old to new. Paths are dotted with bracketed indices, e.g.
// "personal_info.full_name" or "qualifications[2].course". Array elements
// that are objects carrying an "id" field are matched by identity; everything
// else is matched positionally.
func ComputeDiffs(old, new api.Value) []api.Diff {
	var out []api.Diff
	diffValue("", old, new, &out)
	return out
}

func diffValue(path string, old, new api.Value, out *[]api.Diff) {
	if old.Equal(new) {
		return
	}

	switch {
	case old.Kind == api.KindObject && new.Kind == api.KindObject:
		diffObject(path, old, new, out)
	case old.Kind == api.KindArray && new.Kind == api.KindArray:
		diffArray(path, old, new, out)
	case old.IsNull():
		emitLeaves(path, new, api.ChangeAdded, out)
	case new.IsNull():
		emitLeaves(path, old, api.ChangeRemoved, out)
	case old.Kind == api.KindScalar && new.Kind == api.KindScalar:
		*out = append(*out, api.Diff{
			Path: path,
			Old:  old.Scalar,
			New:  new.Scalar,
			Kind: api.ChangeModified,
		})
	default:
		// A node changed shape entirely (scalar became an object, object
		// became an array). Record it as removal of the old leaves plus
		// addition of the new ones.
		emitLeaves(path, old, api.ChangeRemoved, out)
		emitLeaves(path, new, api.ChangeAdded, out)
	}
}

func diffObject(path string, old, new api.Value, out *[]api.Diff) {
	keys := make(map[string]bool, len(old.Fields)+len(new.Fields))
	for k := range old.Fields {
		keys[k] = true
	}
	for k := range new.Fields {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := joinPath(path, k)
		ov, ook := old.Fields[k]
		nv, nok := new.Fields[k]
		switch {
		case ook && nok:
			diffValue(childPath, ov, nv, out)
		case nok:
			emitLeaves(childPath, nv, api.ChangeAdded, out)
		default:
			emitLeaves(childPath, ov, api.ChangeRemoved, out)
		}
	}
}

func diffArray(path string, old, new api.Value, out *[]api.Diff) {
	oldByID := make(map[string]int)
	for i, item := range old.Items {
		if id := item.StringField("id"); id != "" {
			oldByID[id] = i
		}
	}

	// Identity matching only applies when every new element with an id can
	// look up a counterpart; mixed arrays fall back to positional matching.
	byIdentity := len(oldByID) > 0

	if byIdentity {
		matchedOld := make(map[int]bool, len(old.Items))
		for i, item := range new.Items {
			itemPath := indexPath(path, i)
			id := item.StringField("id")
			if id != "" {
				if oi, ok := oldByID[id]; ok {
					matchedOld[oi] = true
					diffValue(itemPath, old.Items[oi], item, out)
					continue
				}
			}
			emitLeaves(itemPath, item, api.ChangeAdded, out)
		}
		for i, item := range old.Items {
			if !matchedOld[i] {
				emitLeaves(indexPath(path, i), item, api.ChangeRemoved, out)
			}
		}
		return
	}

	max := len(old.Items)
	if len(new.Items) > max {
		max = len(new.Items)
	}
	for i := 0; i < max; i++ {
		itemPath := indexPath(path, i)
		switch {
		case i < len(old.Items) && i < len(new.Items):
			diffValue(itemPath, old.Items[i], new.Items[i], out)
		case i < len(new.Items):
			emitLeaves(itemPath, new.Items[i], api.ChangeAdded, out)
		default:
			emitLeaves(itemPath, old.Items[i], api.ChangeRemoved, out)
		}
	}
}

// emitLeaves flattens a subtree into one diff entry per scalar leaf, all with
// the same change kind.
func emitLeaves(path string, v api.Value, kind api.ChangeKind, out *[]api.Diff) {
	switch v.Kind {
	case api.KindNull:
		// A null node carries no data; nothing to record.
	case api.KindScalar:
		d := api.Diff{Path: path, Kind: kind}
		if kind == api.ChangeRemoved {
			d.Old = v.Scalar
		} else {
			d.New = v.Scalar
		}
		*out = append(*out, d)
	case api.KindObject:
		keys := make([]string, 0, len(v.Fields))
		for k := range v.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			emitLeaves(joinPath(path, k), v.Fields[k], kind, out)
		}
	case api.KindArray:
		for i, item := range v.Items {
			emitLeaves(indexPath(path, i), item, kind, out)
		}
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func indexPath(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}
