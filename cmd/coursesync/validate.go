package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"prairielearn/backend/internal/coursedb"
)

func newValidateCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <course-dir>...",
		Short: "Check course directories without touching the database",
		Long: `Load each course directory and report the problems a sync would hit:
unreadable info files, duplicate tag or question names, and questions
listing tags the course does not define.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result *multierror.Error
			out := cmd.OutOrStdout()
			for _, dir := range args {
				course, err := coursedb.Load(dir)
				if err == nil {
					err = course.Validate()
				}
				if err != nil {
					fmt.Fprintf(out, "FAIL  %s\n", dir)
					result = multierror.Append(result, fmt.Errorf("%s: %w", dir, err))
					continue
				}
				fmt.Fprintf(out, "OK    %s: %s, %d tags %v, %d questions\n",
					dir, course.Name, len(course.Tags), course.TagNames(), len(course.Questions))
			}
			return result.ErrorOrNil()
		},
	}
}
