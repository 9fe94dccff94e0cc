package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	askStream    bool
	askK         int
	askMMR       bool
	askNoSources bool
	askSnippets  bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <index_id> <question>",
	Short: "Answer a question from an index",
	Long: `Retrieve the chunks of an index most relevant to a question and have the
LLM answer from them, citing sources as [0], [1], ...

Examples:
  # Ask a question
  docrag ask idx_3f2a... "What is the vacation policy?"

  # Stream the answer as it is generated
  docrag ask idx_3f2a... "Summarize chapter 2" --stream

  # Retrieve more, less redundant context
  docrag ask idx_3f2a... "List every deadline" -k 8 --mmr`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askStream, "stream", "s", false, "stream the answer as plain text")
	askCmd.Flags().IntVarP(&askK, "top-k", "k", 0, "number of chunks to retrieve (defaults to retrieval.default_k)")
	askCmd.Flags().BoolVar(&askMMR, "mmr", false, "re-rank chunks by Maximal Marginal Relevance")
	askCmd.Flags().BoolVar(&askNoSources, "no-sources", false, "do not list sources")
	askCmd.Flags().BoolVar(&askSnippets, "snippets", false, "show a snippet under each source")
}

func runAsk(cmd *cobra.Command, args []string) error {
	indexID, question := args[0], args[1]

	cfg := config.Get()
	k := askK
	if k == 0 {
		k = cfg.Retrieval.DefaultK
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	storeName, err := a.indexer.Resolve(indexID)
	if err != nil {
		return err
	}

	opts := rag.OptionsFromConfig(cfg)
	if askMMR {
		opts.Mode = store.ModeMMR
	}
	pipeline, err := a.pipeline(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Debug("Answering", "index", indexID, "store", storeName, "k", k, "mode", opts.Mode)

	if askStream {
		return streamAnswer(ctx, pipeline, question, storeName, k)
	}

	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	go showSpinner("Generating answer", stopSpinner, spinnerDone)

	answer, err := pipeline.Answer(ctx, question, storeName, k, !askNoSources)

	close(stopSpinner)
	<-spinnerDone

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("answer generation failed: %w", err)
	}

	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, err := renderMarkdown(answer.Answer)
	if err != nil {
		// Fallback to raw output if rendering fails
		fmt.Println(answer.Answer)
	} else {
		fmt.Print(rendered)
	}

	printSources(answer.Sources)
	return nil
}

// streamAnswer prints fragments as they arrive. Markdown is not rendered
// since the text is incomplete until the stream ends.
func streamAnswer(ctx context.Context, pipeline *rag.Pipeline, question, storeName string, k int) error {
	s, err := pipeline.StreamAnswer(ctx, question, storeName, k)
	if err != nil {
		return fmt.Errorf("answer generation failed: %w", err)
	}
	defer s.Close()

	for s.Next() {
		fmt.Print(s.Text())
	}
	fmt.Println()

	if err := s.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("answer generation failed: %w", err)
	}

	if !askNoSources {
		fmt.Println()
		printSources(s.Sources())
	}
	return nil
}

func printSources(sources []rag.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println(ui.HorizontalRule(40))
	fmt.Println(ui.Dim.Render("Sources:"))
	for i, src := range sources {
		fmt.Printf("  %s\n", ui.FormatSource(i, src.Source, src.Page))
		if askSnippets {
			fmt.Println(ui.Snippet.Render(truncateLine(src.Snippet, 100)))
		}
	}
}

// truncateLine flattens a snippet to one line of at most maxLen runes.
func truncateLine(s string, maxLen int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-3]) + "..."
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
