package agent

import (
	"context"
	"reflect"
	"testing"

	"repopal/pkg/github"
)

func TestApplyChangesPartialFailure(t *testing.T) {
	gh := newMockGateway()
	gh.files["a.txt"] = "old a"
	gh.files["b.txt"] = "old b"
	gh.failPut["b.txt"] = "409 stale revision marker"

	a := testAgent(t, &mockCompleter{}, gh)

	cs := &ChangeSet{
		Changes: []FileEdit{
			{Path: "a.txt", Action: "update", Content: "new a"},
			{Path: "b.txt", Action: "update", Content: "new b"},
		},
		CommitMessage: "update both",
	}

	out := a.applyChanges(context.Background(), &github.Repo{Owner: "o", Name: "r"}, cs)

	if !reflect.DeepEqual(out.ChangedPaths, []string{"a.txt"}) {
		t.Errorf("ChangedPaths = %v, want [a.txt]", out.ChangedPaths)
	}
	if len(out.Errors) != 1 || out.Errors[0].Path != "b.txt" {
		t.Errorf("Errors = %v, want b.txt failure", out.Errors)
	}
	if gh.files["a.txt"] != "new a" {
		t.Errorf("a.txt = %q, want committed content", gh.files["a.txt"])
	}
	if gh.files["b.txt"] != "old b" {
		t.Errorf("b.txt = %q, want untouched", gh.files["b.txt"])
	}
	if out.CommitSHA == "" {
		t.Error("CommitSHA empty despite a successful write")
	}
}

func TestApplyChangesSequentialOrder(t *testing.T) {
	gh := newMockGateway()

	a := testAgent(t, &mockCompleter{}, gh)

	cs := &ChangeSet{
		Changes: []FileEdit{
			{Path: "first.txt", Action: "create", Content: "1"},
			{Path: "second.txt", Action: "create", Content: "2"},
			{Path: "third.txt", Action: "create", Content: "3"},
		},
		CommitMessage: "add files",
	}

	out := a.applyChanges(context.Background(), &github.Repo{Owner: "o", Name: "r"}, cs)

	want := []string{"first.txt", "second.txt", "third.txt"}
	if !reflect.DeepEqual(gh.putPaths, want) {
		t.Errorf("write order = %v, want %v", gh.putPaths, want)
	}
	if !reflect.DeepEqual(out.ChangedPaths, want) {
		t.Errorf("ChangedPaths = %v, want %v", out.ChangedPaths, want)
	}
	// The recorded commit is the last one issued
	if out.CommitSHA != "commit-3" {
		t.Errorf("CommitSHA = %q, want commit-3", out.CommitSHA)
	}
}

func TestApplyChangesAllFail(t *testing.T) {
	gh := newMockGateway()
	gh.failPut["a.txt"] = "403"
	gh.failPut["b.txt"] = "403"

	a := testAgent(t, &mockCompleter{}, gh)

	cs := &ChangeSet{
		Changes: []FileEdit{
			{Path: "a.txt", Content: "a"},
			{Path: "b.txt", Content: "b"},
		},
	}

	out := a.applyChanges(context.Background(), &github.Repo{Owner: "o", Name: "r"}, cs)

	if len(out.ChangedPaths) != 0 {
		t.Errorf("ChangedPaths = %v, want none", out.ChangedPaths)
	}
	if len(out.Errors) != 2 {
		t.Errorf("Errors = %d, want 2", len(out.Errors))
	}
	if out.CommitSHA != "" {
		t.Errorf("CommitSHA = %q, want empty", out.CommitSHA)
	}
}
