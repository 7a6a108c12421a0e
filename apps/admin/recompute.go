package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) recompute(userID, courseID string) error {
	summary, err := cli.svc.RecomputeCourse(context.Background(), userID, courseID)
	if err != nil {
		return err
	}

	fmt.Printf(
		"course %s (user %s): %.2f%% - %d/%d lessons completed\n",
		summary.CourseID, summary.UserID,
		summary.AggregateProgressRate,
		summary.CompletedLessonCount, summary.TotalLessonCount,
	)
	return nil
}
