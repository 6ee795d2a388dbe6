package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/fintool/pkg/tagging"
	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

var (
	tagID      string
	tagConcept string
	tagLabels  string
)

// tagCmd groups the tag rule commands.
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tag rules",
	Long: `Tag rules map an exact transaction concept to a set of tags.
Synced emails whose concept matches a rule are tagged automatically.`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tag rule",
	Long: `Add a tag rule.

Example:
  fintool tag add --concept "UBER EATS" --tags "food|delivery"`,
	Run: runTagAdd,
}

var tagEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a tag rule",
	Run:   runTagEdit,
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a tag rule",
	Run:   runTagRemove,
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tag rules",
	Run:   runTagList,
}

var tagImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import tag rules from a YAML file",
	Long: `Import tag rules from a YAML file. Concepts that already have a rule
are skipped.

File format:
  rules:
    - concept: UBER EATS
      tags: [food, delivery]`,
	Args: cobra.ExactArgs(1),
	Run:  runTagImport,
}

func init() {
	tagAddCmd.Flags().StringVar(&tagConcept, "concept", "", "Concept to match (required)")
	tagAddCmd.Flags().StringVar(&tagLabels, "tags", "", `Tags separated by "|" (required)`)
	tagAddCmd.MarkFlagRequired("concept")
	tagAddCmd.MarkFlagRequired("tags")

	tagEditCmd.Flags().StringVar(&tagID, "id", "", "Tag id (required)")
	tagEditCmd.Flags().StringVar(&tagConcept, "concept", "", "New concept")
	tagEditCmd.Flags().StringVar(&tagLabels, "tags", "", "New tags")
	tagEditCmd.MarkFlagRequired("id")

	tagRemoveCmd.Flags().StringVar(&tagID, "id", "", "Tag id (required)")
	tagRemoveCmd.MarkFlagRequired("id")

	tagCmd.AddCommand(tagAddCmd, tagEditCmd, tagRemoveCmd, tagListCmd, tagImportCmd)
}

func runTagAdd(cmd *cobra.Command, args []string) {
	tag, err := tagging.New("", tagConcept, tagset.Parse(tagLabels))
	exitOnError(err, "invalid tag")

	w := openWorkspace()
	defer w.Close()

	exitOnError(w.tags.Add(tag), "failed to add tag")
	slog.Info("Tag added", "id", tag.ID, "concept", tag.Concept)
	fmt.Println(tag.ID)
}

func runTagEdit(cmd *cobra.Command, args []string) {
	w := openWorkspace()
	defer w.Close()

	current, err := w.tags.Get(tagID)
	exitOnError(err, "failed to load tag")
	if current == nil {
		exitOnError(fmt.Errorf("%w: %s", tagging.ErrTagNotFound, tagID), "failed to edit tag")
	}

	concept, labels := current.Concept, current.Tags
	if cmd.Flags().Changed("concept") {
		concept = tagConcept
	}
	if cmd.Flags().Changed("tags") {
		labels = tagset.Parse(tagLabels)
	}

	tag, err := tagging.New(current.ID, concept, labels)
	exitOnError(err, "invalid tag")

	exitOnError(w.tags.Update(tag), "failed to update tag")
	slog.Info("Tag updated", "id", tag.ID)
}

func runTagRemove(cmd *cobra.Command, args []string) {
	w := openWorkspace()
	defer w.Close()

	exitOnError(w.tags.Delete(tagID), "failed to remove tag")
	slog.Info("Tag removed", "id", tagID)
}

func runTagList(cmd *cobra.Command, args []string) {
	w := openWorkspace()
	defer w.Close()

	tags, err := w.tags.List()
	exitOnError(err, "failed to list tags")

	if len(tags) == 0 {
		fmt.Println("No tags defined")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONCEPT\tTAGS")
	for _, tag := range tags {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tag.ID, tag.Concept, tag.Tags)
	}
	tw.Flush()
}

func runTagImport(cmd *cobra.Command, args []string) {
	tags, err := tagging.LoadRules(args[0])
	exitOnError(err, "failed to load tag rules")

	w := openWorkspace()
	defer w.Close()

	added, err := w.tags.Import(tags)
	exitOnError(err, "failed to import tag rules")

	slog.Info("Tag rules imported", "added", added, "skipped", len(tags)-added)
	fmt.Printf("Imported %d of %d rules\n", added, len(tags))
}
