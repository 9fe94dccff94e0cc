package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/ui"
)

var deleteYes bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <index_id>",
	Short: "Delete an index and its vector store",
	Long: `Delete the vector store behind an index id and remove the id from the
registry. Answers for the id fail with "not found" afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	indexID := args[0]

	a, err := newApp(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	storeName, err := a.indexer.Resolve(indexID)
	if err != nil {
		return err
	}

	if !deleteYes {
		fmt.Printf("Delete index '%s' (store %s)? This will remove all indexed data. [y/N]: ", indexID, storeName)
		confirm, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(confirm)) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.indexer.Delete(indexID); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Index '%s' deleted.", indexID)))
	return nil
}
