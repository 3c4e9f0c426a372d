package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/metagate/pkg/ident"
)

func (c *CLI) identCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ident",
		Short: "Inspect and build metadata identifiers",
	}
	cmd.AddCommand(c.identParseCommand())
	cmd.AddCommand(c.identFormatCommand())
	return cmd
}

func (c *CLI) identParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <identifier>",
		Short: "Split an identifier into its parts",
		Example: `  metagate ident parse friend:movie:42
  metagate ident parse 'friend://movie/42/children'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ident.Parse(args[0])
			if err != nil {
				return err
			}
			form := "colon"
			switch {
			case id.IsURL:
				form = "url"
			case id.Source == "":
				form = "raw backend id"
			}

			fmt.Fprintln(c.out, StyleTitle.Render(args[0]))
			printKeyValue(c.out, "form", form)
			printKeyValue(c.out, "source", id.Source)
			printKeyValue(c.out, "directory", id.Directory)
			printKeyValue(c.out, "id", id.ID)
			printKeyValue(c.out, "relative path", id.RelativePath)
			printKeyValue(c.out, "partial", id.Partial().String())
			if err := id.Validate(); err != nil {
				printWarning(c.out, "does not round-trip: %v", err)
			}
			return nil
		},
	}
}

func (c *CLI) identFormatCommand() *cobra.Command {
	var id ident.Identifier

	cmd := &cobra.Command{
		Use:     "format",
		Short:   "Build an identifier from its parts",
		Example: `  metagate ident format --source friend --dir movie --id 42 --url`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := id.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, id.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&id.Source, "source", "", "source slug")
	cmd.Flags().StringVar(&id.Directory, "dir", "", "directory inside the source")
	cmd.Flags().StringVar(&id.ID, "id", "", "item id")
	cmd.Flags().BoolVar(&id.IsURL, "url", false, "use the URL form")
	cmd.Flags().StringVar(&id.RelativePath, "path", "", "relative path (URL form only)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.RegisterFlagCompletionFunc("source", completeSourceSlugs)
	return cmd
}
