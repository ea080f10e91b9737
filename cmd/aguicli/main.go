// Command aguicli is a minimal reference client exercising the stateful
// conversation client against a live AG-UI HTTP/SSE endpoint.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"goa.design/ag-ui-go/client"
	"goa.design/ag-ui-go/events"
	httptransport "goa.design/ag-ui-go/transport/http"
)

func main() {
	var (
		urlF     = flag.String("url", "http://localhost:8080/agent", "AG-UI run endpoint")
		threadF  = flag.String("thread", "", "existing thread id to continue (omit to start a new thread)")
		historyF = flag.Bool("full-history", false, "send the full conversation history on every run")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := httptransport.New(*urlF)
	strategy := client.ContextStrategySingleMessage
	if *historyF {
		strategy = client.ContextStrategyFullHistory
	}
	c := client.New(transport, client.WithContextStrategy(strategy))

	threadID := *threadF
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "type a message and press enter; ctrl-d to exit")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		out, err := c.ContinueConversation(ctx, line, client.ContinueOptions{ThreadID: threadID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if threadID == "" {
			threads := c.GetAllThreads()
			if len(threads) > 0 {
				threadID = threads[len(threads)-1]
			}
		}
		printRun(out)
	}
}

func printRun(out <-chan events.Event) {
	for evt := range out {
		switch e := evt.(type) {
		case *events.TextMessageContentEvent:
			fmt.Print(e.Delta)
		case *events.TextMessageEndEvent:
			fmt.Println()
		case *events.RunErrorEvent:
			fmt.Fprintf(os.Stderr, "\nrun error: %s\n", e.Message)
		case *events.ToolCallStartEvent:
			fmt.Fprintf(os.Stderr, "\n[calling %s]\n", e.ToolCallName)
		}
	}
}
