package auth

import (
	"os"
	"path/filepath"
	"testing"
)

type memRepo struct{ users []User }

func (m *memRepo) LoadAll() ([]User, error) { return append([]User{}, m.users...), nil }
func (m *memRepo) Upsert(u User) error {
	for i, x := range m.users {
		if x.ID == u.ID {
			m.users[i] = u
			return nil
		}
	}
	m.users = append(m.users, u)
	return nil
}
func (m *memRepo) Remove(id string) error {
	out := make([]User, 0, len(m.users))
	for _, x := range m.users {
		if x.ID != id {
			out = append(out, x)
		}
	}
	m.users = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{users: []User{{ID: "alice", Note: "owner"}}}
	svc, err := NewWithRepo(repo, []string{"bob", ""})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if !svc.IsAllowed("alice") {
		t.Fatalf("repo preload not effective")
	}
	if !svc.IsAllowed("bob") {
		t.Fatalf("initial env list not merged")
	}
	if svc.IsAllowed("carol") || svc.IsAllowed("") {
		t.Fatalf("unexpected allowed")
	}

	if err := svc.Upsert(User{ID: "carol"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !svc.IsAllowed("carol") {
		t.Fatalf("upsert not effective")
	}

	if err := svc.Remove("alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if svc.IsAllowed("alice") {
		t.Fatalf("remove not effective")
	}

	lst := svc.List()
	if len(lst) != 2 || lst[0].ID != "bob" || lst[1].ID != "carol" {
		t.Fatalf("unexpected list %+v", lst)
	}
	if len(repo.users) != 1 || repo.users[0].ID != "carol" {
		t.Fatalf("repo not updated: %+v", repo.users)
	}
}

func TestService_EmptyAllowsEveryone(t *testing.T) {
	svc, err := NewWithRepo(nil, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !svc.IsAllowed("anyone") {
		t.Fatalf("empty allowlist should admit everybody")
	}
}

func TestFileRepository_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "allowlist.json")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	users, err := repo.LoadAll()
	if err != nil || len(users) != 0 {
		t.Fatalf("fresh file: %+v %v", users, err)
	}

	if err := repo.Upsert(User{ID: "u1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(User{ID: "u2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(User{ID: "u1", Note: "again"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Remove("u2"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	users, err = repo.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" || users[0].Note != "again" {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestFileRepository_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := NewWithRepo(repo, nil); err == nil {
		t.Fatalf("expected malformed allowlist to fail")
	}
}
