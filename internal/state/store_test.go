package state

import (
	"sync"
	"testing"

	"github.com/sandeepkv93/optixflow/internal/model"
)

func TestSnapshotIsDeepCopy(t *testing.T) {
	store, w := New()
	w.Mutate(func(d *Data) {
		d.Tasks = []model.Task{{ID: "t", Title: "a", Subtasks: []model.Subtask{{ID: "s", Title: "x"}}}}
		d.Projects = []model.Project{{ID: "p", Name: "P"}}
		d.ActiveProjectID = model.StringPtr("p")
		d.SetStatus("t", SyncPending)
	})

	snap := store.Snapshot()
	snap.Tasks[0].Title = "mutated"
	snap.Tasks[0].Subtasks[0].Title = "mutated"
	snap.Projects[0].Name = "mutated"
	*snap.ActiveProjectID = "other"
	snap.Sync["t"] = SyncFailed

	again := store.Snapshot()
	if again.Tasks[0].Title != "a" || again.Tasks[0].Subtasks[0].Title != "x" || again.Projects[0].Name != "P" {
		t.Fatalf("snapshot mutation leaked into store: %+v", again)
	}
	if *again.ActiveProjectID != "p" || again.Status("t") != SyncPending {
		t.Fatalf("snapshot mutation leaked into store: %+v", again)
	}
}

func TestSessionReturnsCopy(t *testing.T) {
	store, w := New()
	if store.Session() != nil {
		t.Fatal("new store should be in guest mode")
	}
	w.Mutate(func(d *Data) {
		d.Session = &Session{UserID: "u1", Email: "a@example.com"}
		d.Tasks = []model.Task{{ID: "t"}}
	})

	sess := store.Session()
	if sess == nil || sess.UserID != "u1" || sess.Email != "a@example.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	sess.UserID = "mutated"
	if got := store.Session().UserID; got != "u1" {
		t.Fatalf("session mutation leaked into store: %q", got)
	}
	before := store.Snapshot().Version
	store.Session()
	if after := store.Snapshot().Version; after != before {
		t.Fatalf("reading the session bumped the version: %d -> %d", before, after)
	}
}

func TestSubscribersSeeEveryVersionInOrder(t *testing.T) {
	store, w := New()
	var mu sync.Mutex
	var seen []uint64
	unsubscribe := store.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Mutate(func(d *Data) { d.Tasks = append(d.Tasks, model.Task{ID: "x"}) })
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 50 {
		t.Fatalf("expected 50 notifications, got %d", len(seen))
	}
	for i, v := range seen {
		if v != uint64(i+1) {
			t.Fatalf("notification %d carried version %d", i, v)
		}
	}

	unsubscribe()
	w.Mutate(func(d *Data) {})
	if len(seen) != 50 {
		t.Fatal("unsubscribed callback should not be invoked")
	}
}

func TestNotificationCarriesOptimisticState(t *testing.T) {
	store, w := New()
	var got Snapshot
	store.Subscribe(func(s Snapshot) { got = s })
	w.Mutate(func(d *Data) {
		d.Tasks = append(d.Tasks, model.Task{ID: "t1", Title: "new"})
	})
	if task, ok := got.Task("t1"); !ok || task.Title != "new" {
		t.Fatalf("subscriber should observe the mutation: %+v", got)
	}
	if !got.IsGuest() {
		t.Fatal("store without a session is in guest mode")
	}
}

func TestFindSubtask(t *testing.T) {
	d := Data{Tasks: []model.Task{
		{ID: "a"},
		{ID: "b", Subtasks: []model.Subtask{{ID: "s1"}, {ID: "s2"}}},
	}}
	ti, si := d.FindSubtask("s2")
	if ti != 1 || si != 1 {
		t.Fatalf("unexpected indexes: %d %d", ti, si)
	}
	if ti, si := d.FindSubtask("nope"); ti != -1 || si != -1 {
		t.Fatalf("expected miss, got %d %d", ti, si)
	}
}
