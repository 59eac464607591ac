// Package detector implements the change detector, C3: diffing the
// host-app readout against the snapshot to classify add / modify /
// delete, per spec §4.3.
package detector

import (
	"sort"
	"time"

	"todosync/internal/client/hostapp"
	"todosync/internal/client/registry"
	"todosync/internal/client/snapshot"
)

// Detect mutates doc in place: touched records get editedAt = now, and
// doc.Dirty.Upserted / doc.Dirty.Deleted are updated to reflect every
// add, modify, delete and withdrawn-delete found between host and the
// prior snapshot.
func Detect(host []hostapp.Todo, doc *snapshot.Document, reg *registry.Registry, now time.Time) {
	inHost := make(map[string]hostapp.Todo, len(host))
	for _, t := range host {
		inHost[t.LocalID] = t
	}

	dirtySet := make(map[string]struct{}, len(doc.Dirty.Upserted))
	for _, id := range doc.Dirty.Upserted {
		dirtySet[id] = struct{}{}
	}

	for localID, current := range inHost {
		prior, existed := doc.Todos[localID]
		switch {
		case !existed:
			rec := toRecord(current, now)
			doc.Todos[localID] = rec
			dirtySet[localID] = struct{}{}
		case differs(prior, current):
			rec := toRecord(current, now)
			doc.Todos[localID] = rec
			dirtySet[localID] = struct{}{}
		}
	}

	for localID := range doc.Todos {
		if _, stillThere := inHost[localID]; stillThere {
			continue
		}
		// Deleted locally: remove from todos, record a pending delete if
		// the item has a known serverId.
		delete(doc.Todos, localID)
		delete(dirtySet, localID)
		if serverID, ok := reg.Reverse(localID); ok {
			if _, already := doc.Dirty.Deleted[serverID]; !already {
				doc.Dirty.Deleted[serverID] = now
			}
		}
	}

	// Withdraw pending deletes whose local id has reappeared in the
	// host-app readout.
	for serverID := range doc.Dirty.Deleted {
		localID, ok := reg.Get(serverID)
		if !ok {
			continue
		}
		if _, backAgain := inHost[localID]; backAgain {
			delete(doc.Dirty.Deleted, serverID)
		}
	}

	doc.Dirty.Upserted = sortedKeys(dirtySet)
}

func toRecord(t hostapp.Todo, editedAt time.Time) snapshot.TodoRecord {
	tags := append([]string(nil), t.Tags...)
	if tags == nil {
		tags = []string{}
	}
	return snapshot.TodoRecord{
		Title:    t.Title,
		Notes:    t.Notes,
		DueDate:  t.DueDate,
		Tags:     tags,
		Status:   t.Status,
		Position: t.Position,
		EditedAt: editedAt,
	}
}

// differs compares the host readout to the snapshot record on every
// field the spec names, §4.3; editedAt itself is excluded since it is
// what detection sets, not what it compares.
func differs(prior snapshot.TodoRecord, current hostapp.Todo) bool {
	if prior.Title != current.Title || prior.Notes != current.Notes || prior.Status != current.Status || prior.Position != current.Position {
		return true
	}
	if !sameDueDate(prior.DueDate, current.DueDate) {
		return true
	}
	return !sameTagSet(prior.Tags, current.Tags)
}

func sameDueDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
