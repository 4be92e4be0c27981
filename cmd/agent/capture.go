package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/offline/capture"
	"example.com/fittrack/pkg/workout"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a workout, sending it now or queueing it offline",
}

var captureTreadmillCmd = &cobra.Command{
	Use:   "treadmill",
	Short: "Record a treadmill workout",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := commonPayload(cmd)
		if err != nil {
			return err
		}
		payload.DistanceKm, _ = cmd.Flags().GetFloat64("distance-km")
		payload.AvgSpeedKmh, _ = cmd.Flags().GetFloat64("avg-speed-kmh")
		if cmd.Flags().Changed("calories") {
			calories, _ := cmd.Flags().GetInt("calories")
			payload.CaloriesBurned = &calories
		}
		return save(cmd, workout.KindTreadmill, payload)
	},
}

var captureStrengthCmd = &cobra.Command{
	Use:   "strength",
	Short: "Record a strength workout",
	Example: `  fittrack-agent capture strength --duration 45m \
    --exercises '[{"exerciseId":"squat","exerciseName":"Back squat","sets":[{"reps":5,"weightKg":100,"completed":true}]}]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := commonPayload(cmd)
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("exercises")
		if err := json.Unmarshal([]byte(raw), &payload.Exercises); err != nil {
			return fmt.Errorf("--exercises must be a JSON array: %w", err)
		}
		payload.PlanID, _ = cmd.Flags().GetString("plan-id")
		return save(cmd, workout.KindStrength, payload)
	},
}

func commonPayload(cmd *cobra.Command) (workout.Payload, error) {
	duration, _ := cmd.Flags().GetDuration("duration")
	startedAt, _ := cmd.Flags().GetString("started-at")
	notes, _ := cmd.Flags().GetString("notes")

	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-duration)
	if startedAt != "" {
		parsed, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return workout.Payload{}, fmt.Errorf("--started-at must be RFC 3339: %w", err)
		}
		start = parsed.UTC()
		end = start.Add(duration)
	}

	return workout.Payload{
		StartedAt:       start.Format(time.RFC3339),
		EndedAt:         end.Format(time.RFC3339),
		DurationSeconds: int(duration.Seconds()),
		Notes:           notes,
	}, nil
}

func save(cmd *cobra.Command, kind workout.Kind, payload workout.Payload) error {
	a, err := openAgent(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.recorder.Save(cmd.Context(), kind, payload)
	if errors.Is(err, capture.ErrNotSaved) {
		fmt.Fprintf(os.Stderr, "Could not save offline: the workout was NOT stored\n")
		return err
	}
	if err != nil {
		return err
	}
	switch {
	case out.Synced:
		fmt.Printf("Saved %s workout %s\n", kind, out.LocalID)
	case out.Queued:
		fmt.Printf("Saved %s workout %s offline; it will sync when connectivity returns\n", kind, out.LocalID)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{captureTreadmillCmd, captureStrengthCmd} {
		c.Flags().Duration("duration", 0, "Workout duration, e.g. 30m")
		c.Flags().String("started-at", "", "Start time in RFC 3339 (default now minus duration)")
		c.Flags().String("notes", "", "Free-form notes")
		_ = c.MarkFlagRequired("duration")
	}

	captureTreadmillCmd.Flags().Float64("distance-km", 0, "Distance in kilometres")
	captureTreadmillCmd.Flags().Float64("avg-speed-kmh", 0, "Average speed; derived from distance and duration when omitted")
	captureTreadmillCmd.Flags().Int("calories", 0, "Calories burned")
	_ = captureTreadmillCmd.MarkFlagRequired("distance-km")

	captureStrengthCmd.Flags().String("exercises", "", "Exercises and sets as a JSON array")
	captureStrengthCmd.Flags().String("plan-id", "", "Workout plan the session followed")
	_ = captureStrengthCmd.MarkFlagRequired("exercises")

	captureCmd.AddCommand(captureTreadmillCmd, captureStrengthCmd)
	rootCmd.AddCommand(captureCmd)
}
