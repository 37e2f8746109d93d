package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"versionedkv/internal/idalloc"
	"versionedkv/internal/rawmap"
	"versionedkv/internal/trash"
)

// Dump serializes the full engine state to a binary form, in the manual
// fixed-layout style of the teacher's VersionHistory.Serialize (spec §9:
// the layered KV needs an explicit persisted form, since unlike the
// branch/version indices it is never rebuilt from anything else). The
// format: default branch id, then the five top-level tables, each as a
// length-prefixed sequence of length-prefixed records.
func (e *Engine) Dump(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := binary.Write(w, binary.LittleEndian, e.defaultBranch); err != nil {
		return fmt.Errorf("dump default branch: %w", err)
	}

	if err := dumpBytePairs(w, e.brNameToBrID.Iter()); err != nil {
		return fmt.Errorf("dump branch names: %w", err)
	}
	if err := dumpBytePairs(w, e.verNameToVerID.Iter()); err != nil {
		return fmt.Errorf("dump version names: %w", err)
	}

	if err := dumpBranchVersions(w, e.brToItsVers); err != nil {
		return fmt.Errorf("dump branch versions: %w", err)
	}
	if err := dumpChangeSets(w, e.verToChangeSet); err != nil {
		return fmt.Errorf("dump change sets: %w", err)
	}
	if err := dumpLayeredKV(w, e.layeredKV); err != nil {
		return fmt.Errorf("dump layered kv: %w", err)
	}

	return nil
}

func dumpBytePairs(w io.Writer, it rawmap.Iterator) error {
	var recs [][2][]byte
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		recs = append(recs, [2][]byte{k, v})
	}
	if err := writeUint32(w, uint32(len(recs))); err != nil {
		return err
	}
	for _, r := range recs {
		if err := writeBlob(w, r[0]); err != nil {
			return err
		}
		if err := writeBlob(w, r[1]); err != nil {
			return err
		}
	}
	return nil
}

func dumpBranchVersions(w io.Writer, brToItsVers rawmap.RawMap) error {
	var brIDs [][]byte
	var verLists [][][]byte
	it := brToItsVers.Iter()
	for {
		k, handle, ok := it.Next()
		if !ok {
			break
		}
		vm, ok := rawmap.FromSlice(handle)
		if !ok {
			continue
		}
		var vers [][]byte
		vit := vm.Iter()
		for {
			vk, _, ok := vit.Next()
			if !ok {
				break
			}
			vers = append(vers, vk)
		}
		brIDs = append(brIDs, k)
		verLists = append(verLists, vers)
	}

	if err := writeUint32(w, uint32(len(brIDs))); err != nil {
		return err
	}
	for i, brID := range brIDs {
		if err := writeBlob(w, brID); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(verLists[i]))); err != nil {
			return err
		}
		for _, v := range verLists[i] {
			if _, err := w.Write(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpChangeSets(w io.Writer, verToChangeSet rawmap.RawMap) error {
	var verIDs [][]byte
	var keyLists [][][]byte
	it := verToChangeSet.Iter()
	for {
		k, handle, ok := it.Next()
		if !ok {
			break
		}
		cs, ok := rawmap.FromSlice(handle)
		if !ok {
			continue
		}
		var keys [][]byte
		cit := cs.Iter()
		for {
			ck, _, ok := cit.Next()
			if !ok {
				break
			}
			keys = append(keys, ck)
		}
		verIDs = append(verIDs, k)
		keyLists = append(keyLists, keys)
	}

	if err := writeUint32(w, uint32(len(verIDs))); err != nil {
		return err
	}
	for i, verID := range verIDs {
		if err := writeBlob(w, verID); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(keyLists[i]))); err != nil {
			return err
		}
		for _, k := range keyLists[i] {
			if err := writeBlob(w, k); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpLayeredKV(w io.Writer, layeredKV rawmap.RawMap) error {
	type keyVersions struct {
		key  []byte
		vers [][2][]byte
	}
	var all []keyVersions

	it := layeredKV.Iter()
	for {
		k, handle, ok := it.Next()
		if !ok {
			break
		}
		kvers, ok := rawmap.FromSlice(handle)
		if !ok {
			continue
		}
		var vers [][2][]byte
		vit := kvers.Iter()
		for {
			vk, vv, ok := vit.Next()
			if !ok {
				break
			}
			vers = append(vers, [2][]byte{vk, vv})
		}
		all = append(all, keyVersions{key: k, vers: vers})
	}

	if err := writeUint32(w, uint32(len(all))); err != nil {
		return err
	}
	for _, entry := range all {
		if err := writeBlob(w, entry.key); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(entry.vers))); err != nil {
			return err
		}
		for _, v := range entry.vers {
			if _, err := w.Write(v[0]); err != nil {
				return err
			}
			if err := writeBlob(w, v[1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeUint32(w io.Writer, n uint32) error {
	return binary.Write(w, binary.LittleEndian, n)
}

func writeBlob(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var n uint32
	err := binary.Read(r, binary.LittleEndian, &n)
	return n, err
}

func readBlob(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFixed(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Load reconstructs an engine from a Dump. The allocator is not restored
// from the dump; callers should pass one whose counters are at or beyond
// the highest id actually used, so freshly allocated ids never collide
// with restored ones.
func Load(r io.Reader, alloc idalloc.Allocator, cleaner trash.Cleaner) (*Engine, error) {
	e := &Engine{
		brNameToBrID:   rawmap.New(),
		verNameToVerID: rawmap.New(),
		brIDToBrName:   map[BranchID]string{},
		verIDToVerName: map[VersionID]string{},
		brToItsVers:    rawmap.New(),
		verToChangeSet: rawmap.New(),
		layeredKV:      rawmap.New(),
		alloc:          alloc,
		cleaner:        cleaner,
	}

	var defaultBranch uint64
	if err := binary.Read(r, binary.LittleEndian, &defaultBranch); err != nil {
		return nil, fmt.Errorf("load default branch: %w", err)
	}
	e.defaultBranch = defaultBranch

	if err := loadBytePairs(r, e.brNameToBrID); err != nil {
		return nil, fmt.Errorf("load branch names: %w", err)
	}
	if err := loadBytePairs(r, e.verNameToVerID); err != nil {
		return nil, fmt.Errorf("load version names: %w", err)
	}

	bit := e.brNameToBrID.Iter()
	for {
		name, id, ok := bit.Next()
		if !ok {
			break
		}
		e.brIDToBrName[decodeID(id)] = string(name)
	}
	vit := e.verNameToVerID.Iter()
	for {
		name, id, ok := vit.Next()
		if !ok {
			break
		}
		e.verIDToVerName[decodeID(id)] = string(name)
	}

	if err := loadBranchVersions(r, e.brToItsVers); err != nil {
		return nil, fmt.Errorf("load branch versions: %w", err)
	}
	if err := loadChangeSets(r, e.verToChangeSet); err != nil {
		return nil, fmt.Errorf("load change sets: %w", err)
	}
	if err := loadLayeredKV(r, e.layeredKV); err != nil {
		return nil, fmt.Errorf("load layered kv: %w", err)
	}

	return e, nil
}

func loadBytePairs(r io.Reader, into rawmap.RawMap) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		k, err := readBlob(r)
		if err != nil {
			return err
		}
		v, err := readBlob(r)
		if err != nil {
			return err
		}
		into.Insert(k, v)
	}
	return nil
}

func loadBranchVersions(r io.Reader, brToItsVers rawmap.RawMap) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		brID, err := readBlob(r)
		if err != nil {
			return err
		}
		count, err := readUint32(r)
		if err != nil {
			return err
		}
		vm, handle := rawmap.NewSubMap()
		for j := uint32(0); j < count; j++ {
			verID, err := readFixed(r, 8)
			if err != nil {
				return err
			}
			vm.Insert(verID, nil)
		}
		brToItsVers.Insert(brID, handle)
	}
	return nil
}

func loadChangeSets(r io.Reader, verToChangeSet rawmap.RawMap) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		verID, err := readBlob(r)
		if err != nil {
			return err
		}
		count, err := readUint32(r)
		if err != nil {
			return err
		}
		cs, handle := rawmap.NewSubMap()
		for j := uint32(0); j < count; j++ {
			key, err := readBlob(r)
			if err != nil {
				return err
			}
			cs.Insert(key, nil)
		}
		verToChangeSet.Insert(verID, handle)
	}
	return nil
}

func loadLayeredKV(r io.Reader, layeredKV rawmap.RawMap) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		key, err := readBlob(r)
		if err != nil {
			return err
		}
		count, err := readUint32(r)
		if err != nil {
			return err
		}
		kvers, handle := rawmap.NewSubMap()
		for j := uint32(0); j < count; j++ {
			verID, err := readFixed(r, 8)
			if err != nil {
				return err
			}
			val, err := readBlob(r)
			if err != nil {
				return err
			}
			kvers.Insert(verID, val)
		}
		layeredKV.Insert(key, handle)
	}
	return nil
}
