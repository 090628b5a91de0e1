package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/simplexity/internal/conversation"
	"github.com/mohammad-safakhou/simplexity/internal/helpers"
	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func askCMD(cfgPath *string) *cobra.Command {
	var serverURL string
	var convID string
	var fresh bool

	var ask = &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a question against a running server and stream the cited answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			base := a.cfg.Client.BaseURL
			if serverURL != "" {
				base = serverURL
			}
			// Streams can run long; the request context bounds them instead.
			api := conversation.NewHTTPClient(base, &http.Client{})

			switch {
			case fresh:
				conv, err := a.repo.Create(ctx)
				if err != nil {
					return err
				}
				ctx = conversation.WithConversation(ctx, conv.ID)
			case convID != "":
				if err := a.repo.SetCurrent(ctx, convID); err != nil {
					return err
				}
				ctx = conversation.WithConversation(ctx, convID)
			}

			p := &printer{out: cmd.OutOrStdout()}
			orch := conversation.NewOrchestrator(api, a.repo,
				conversation.WithLogger(a.logger),
				conversation.WithObserver(p),
			)
			turn, err := orch.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			orch.Wait()

			if turn.State == conversation.Errored {
				a.logger.Debug("query failed", zap.Error(turn.Cause))
				fmt.Fprintln(cmd.OutOrStdout(), conversation.FixedErrorMessage)
				return errors.New("query failed")
			}
			p.summary(turn.Answer)
			return nil
		},
	}
	ask.Flags().StringVar(&serverURL, "server", "", "server base url (overrides client.base_url)")
	ask.Flags().StringVar(&convID, "conversation", "", "conversation id to continue")
	ask.Flags().BoolVar(&fresh, "new", false, "start a new conversation")
	ask.MarkFlagsMutuallyExclusive("conversation", "new")

	return ask
}

// printer streams answer text as it arrives and prints sources, citations and
// suggestions once the turn has settled.
type printer struct {
	conversation.NopObserver

	mu          sync.Mutex
	out         io.Writer
	sources     []models.SearchResult
	suggestions []string
}

func (p *printer) OnSources(_ string, sources []models.SearchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = sources
}

func (p *printer) OnText(_ string, delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, delta)
}

func (p *printer) OnSuggestions(_ string, questions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suggestions = questions
}

func (p *printer) summary(answer models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
	sources := answer.Sources
	if len(sources) == 0 {
		sources = p.sources
	}
	if len(sources) > 0 {
		fmt.Fprintln(p.out, "\nSources:")
		for i, s := range sources {
			fmt.Fprintf(p.out, "  [%d] %s (%s)\n      %s\n", i+1, s.Title, helpers.DomainOf(s.Link), s.Link)
		}
	}
	if len(answer.Citations) > 0 {
		fmt.Fprintln(p.out, "\nCitations:")
		for _, c := range answer.Citations {
			fmt.Fprintf(p.out, "  %s -> source %d\n", c.Text, c.SourceIndex+1)
		}
	}
	if len(p.suggestions) > 0 {
		fmt.Fprintln(p.out, "\nRelated:")
		for _, q := range p.suggestions {
			fmt.Fprintf(p.out, "  - %s\n", q)
		}
	}
}
