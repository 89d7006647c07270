package dsl

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
)

func step(context.Context, domain.State, graph.Emitter) (domain.Update, error) {
	return domain.Update{}, nil
}

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New()

	b.Add("agent").
		Do(step).
		Terminal()

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	nodes := g.Nodes()
	if len(nodes) != 1 || nodes[0] != "agent" {
		t.Fatalf("Expected [agent], got %v", nodes)
	}

	entry, err := g.Entry(context.Background(), domain.NewState())
	if err != nil {
		t.Fatalf("Entry() failed: %v", err)
	}
	if len(entry) != 1 || entry[0] != "agent" {
		t.Errorf("Expected entry 'agent', got %v", entry)
	}
}

func TestBuilder_ChainWithThen(t *testing.T) {
	b := New()

	b.Add("retrieve").Do(step).
		Then("answer").Do(step).
		Then("summarize").Do(step).
		Terminal()

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	edges := g.Edges()
	want := []graph.Edge{
		{From: graph.Start, To: "retrieve"},
		{From: "retrieve", To: "answer"},
		{From: "answer", To: "summarize"},
		{From: "summarize", To: graph.End},
	}
	if len(edges) != len(want) {
		t.Fatalf("Expected %d edges, got %d: %v", len(want), len(edges), edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge %d: expected %v, got %v", i, want[i], edges[i])
		}
	}
}

func TestBuilder_Branch(t *testing.T) {
	b := New()

	b.Add("triage").
		Do(step).
		Branch(func(_ context.Context, s domain.State) (string, error) {
			if s.Values["escalate"] == true {
				return "human", nil
			}
			return graph.End, nil
		}, "human", graph.End)

	b.Add("human").Do(step).Terminal()

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	next, err := g.Next(context.Background(), "triage", domain.State{Values: map[string]any{"escalate": true}})
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if len(next) != 1 || next[0] != "human" {
		t.Errorf("Expected [human], got %v", next)
	}
}

func TestBuilder_MissingFunction(t *testing.T) {
	b := New()
	b.Add("agent").Terminal()

	if _, err := b.Build(); err == nil {
		t.Fatal("Expected error for node without function")
	}
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Add("agent")
	second := b.Add("agent")
	if first != second {
		t.Error("Expected Add to return the existing builder")
	}
}
