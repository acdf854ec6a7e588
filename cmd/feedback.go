package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/model"
)

var (
	feedbackSubject  string
	feedbackPlatform string
	feedbackCountry  string
	feedbackStrategy string
	feedbackResult   string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record a review outcome for a discovered venue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		result := model.ResultType(feedbackResult)
		switch result {
		case model.ResultTruePositive, model.ResultFalsePositive, model.ResultError:
		default:
			return eris.Errorf("invalid result %q (true_positive, false_positive, error)", feedbackResult)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rec := model.FeedbackRecord{
			SubjectID:  feedbackSubject,
			Platform:   model.Platform(feedbackPlatform),
			Country:    feedbackCountry,
			StrategyID: feedbackStrategy,
			Result:     result,
			ReviewedAt: time.Now().UTC(),
		}
		if err := st.AppendFeedback(ctx, rec); err != nil {
			return err
		}
		fmt.Println("feedback recorded")
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackSubject, "subject", "", "venue candidate id or URL (required)")
	feedbackCmd.Flags().StringVar(&feedbackPlatform, "platform", "", "platform (required)")
	feedbackCmd.Flags().StringVar(&feedbackCountry, "country", "", "ISO country code (required)")
	feedbackCmd.Flags().StringVar(&feedbackStrategy, "strategy", "", "strategy id that surfaced the venue")
	feedbackCmd.Flags().StringVar(&feedbackResult, "result", "", "true_positive | false_positive | error (required)")
	_ = feedbackCmd.MarkFlagRequired("subject")
	_ = feedbackCmd.MarkFlagRequired("platform")
	_ = feedbackCmd.MarkFlagRequired("country")
	_ = feedbackCmd.MarkFlagRequired("result")
	rootCmd.AddCommand(feedbackCmd)
}
