package threadgraph_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/pkg/adapters/echo"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/dsl"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/nodes"
)

// ExampleEngine_Send streams a reply fragment by fragment and shows that the
// thread's transcript survives between turns.
func ExampleEngine_Send() {
	b := dsl.New()
	b.Add("agent").Do(nodes.Chat(echo.New(echo.WithPrefix("you said: ")))).Terminal()
	g, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	engine, err := threadgraph.New(g, memory.NewStore())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for _, line := range []string{"hello", "goodbye"} {
		for frag, err := range engine.Send(ctx, "demo", line) {
			if err != nil {
				log.Fatal(err)
			}
			fmt.Print(frag.Content())
		}
		fmt.Println()
	}

	cp, _ := engine.GetCheckpoint(ctx, "demo")
	fmt.Println("version:", cp.Version, "messages:", len(cp.State.Messages))

	// Output:
	// you said: hello
	// you said: goodbye
	// version: 2 messages: 4
}

// ExampleNew_conditional routes each turn through a classifier before answering.
func ExampleNew_conditional() {
	classify := func(_ context.Context, s domain.State, _ graph.Emitter) (domain.Update, error) {
		last, _ := s.LastMessage()
		intent := "chat"
		if strings.HasSuffix(last.Content, "?") {
			intent = "question"
		}
		return domain.Update{Values: map[string]any{"intent": intent}}, nil
	}
	say := func(text string) graph.NodeFunc {
		return func(ctx context.Context, _ domain.State, out graph.Emitter) (domain.Update, error) {
			msg := domain.AssistantMessage(text)
			if err := out.Emit(ctx, domain.Chunk{Message: msg}); err != nil {
				return domain.Update{}, err
			}
			return domain.Update{Messages: []domain.Message{msg}}, nil
		}
	}

	b := dsl.New()
	b.Add("classify").Do(classify).Branch(nodes.Field("intent", "chat"), "question", "chat")
	b.Add("question").Do(say("Good question.")).Terminal()
	b.Add("chat").Do(say("Nice chatting.")).Terminal()
	g, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	engine, err := threadgraph.New(g, memory.NewStore())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for _, line := range []string{"How are you?", "Fine."} {
		reply, err := engine.Invoke(ctx, "routing", domain.Input(line))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(reply)
	}

	// Output:
	// Good question.
	// Nice chatting.
}
