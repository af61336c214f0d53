package services

import (
	"sync"

	"github.com/gofrs/uuid"
)

type Entity string

const (
	EntityProject Entity = "project"
	EntityTask    Entity = "task"
	EntityMember  Entity = "member"
)

// Change describes a committed mutation. ProjectID is uuid.Nil when the
// change is not scoped to one project.
type Change struct {
	Entity    Entity
	ProjectID uuid.UUID
}

type ChangeListener func(Change)

// changeNotifier fans committed changes out to listeners. Listeners run
// synchronously after the transaction commits.
type changeNotifier struct {
	mu        sync.RWMutex
	listeners []ChangeListener
}

func (n *changeNotifier) OnChange(l ChangeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *changeNotifier) notify(c Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, l := range n.listeners {
		l(c)
	}
}
