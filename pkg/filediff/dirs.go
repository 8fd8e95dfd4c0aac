package filediff

import (
	"slices"

	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// CompactDirs removes every key that lies below another key of the set, so
// that only the topmost directories remain. Passes repeat until a fixed
// point is reached. The result is sorted.
func CompactDirs(dirs []string) []string {
	out := slices.Clone(dirs)
	slices.Sort(out)
	out = slices.Compact(out)
	for {
		kept := make([]string, 0, len(out))
		removed := false
		for _, d := range out {
			covered := false
			for _, k := range kept {
				if d != k && util.IsWithin(d, k) {
					covered = true
					break
				}
			}
			if covered {
				removed = true
				continue
			}
			kept = append(kept, d)
		}
		out = kept
		if !removed {
			return out
		}
	}
}

// withinAny reports whether key equals or lies below one of dirs.
func withinAny(key string, dirs []string) bool {
	for _, d := range dirs {
		if util.IsWithin(key, d) {
			return true
		}
	}
	return false
}

// diffDirs returns the directories only present in main (additions) and
// the compacted set only present in sync (deletions). skip filters out
// trash and ignored keys on both sides.
func diffDirs(mainDirs, syncDirs []string, skip func(string) bool) (additions, deletions []string) {
	inMain := make(map[string]struct{}, len(mainDirs))
	for _, d := range mainDirs {
		inMain[d] = struct{}{}
	}
	inSync := make(map[string]struct{}, len(syncDirs))
	for _, d := range syncDirs {
		inSync[d] = struct{}{}
	}

	for _, d := range mainDirs {
		if skip(d) {
			continue
		}
		if _, ok := inSync[d]; !ok {
			additions = append(additions, d)
		}
	}
	for _, d := range syncDirs {
		if skip(d) {
			continue
		}
		if _, ok := inMain[d]; !ok {
			deletions = append(deletions, d)
		}
	}
	slices.Sort(additions)
	additions = slices.Compact(additions)
	return additions, CompactDirs(deletions)
}
