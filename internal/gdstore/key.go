package gdstore

// Key is a lightweight wrapper around a tag key string enabling fast tag
// lookup: if the key was interned in the store's global string table at
// construction, Code is >= 0 and lookups can use the global-string
// comparison path; otherwise Code is -1 and lookups fall back to a local
// key-string scan (spec §3.6, grounded on the source's Key.h).
//
// A Key obtained from one store is undefined for another — GUIDs differ
// and global codes are not portable across stores (spec §3.1).
type Key struct {
	Name string
	Code int32 // -1 if not interned as a global string
}

// IsGlobal reports whether Code identifies a global-string key.
func (k Key) IsGlobal() bool { return k.Code >= 0 }
