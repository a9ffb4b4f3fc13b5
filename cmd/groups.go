package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List institutes, or the groups of an institute",
	RunE: func(cmd *cobra.Command, args []string) error {
		institute, _ := cmd.Flags().GetString("institute")
		course, _ := cmd.Flags().GetInt("course")
		list, _ := cmd.Flags().GetBool("institutes")

		c := newCatalog()
		if list {
			institutes, err := c.Institutes(cmd.Context())
			if err != nil {
				return err
			}
			for _, in := range institutes {
				fmt.Println(in.Name)
			}
			return nil
		}

		if institute == "" {
			institute = viper.GetString("site.institute")
		}
		groups, err := c.Groups(cmd.Context(), institute, course)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			return fmt.Errorf("no groups found for %s", institute)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "GROUP\tCOURSE\t")
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%d\t\n", g.Name, g.Course)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.Flags().StringP("institute", "i", "", "Institute (default: site.institute from config)")
	groupsCmd.Flags().Int("course", 0, "Course number (0 for all)")
	groupsCmd.Flags().Bool("institutes", false, "List institutes instead of groups")
}
