package main

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	app "imghost/src/app"
)

var reconcileFlags struct {
	dryRun bool
	grace  time.Duration
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove image records without a blob and blobs without a record",
	Long: `Upload writes the blob before its record and delete removes the blob
before its record, so a crash in between leaves the stores out of step.
reconcile walks both stores once and removes what is left over. Blobs younger
than --grace are skipped because their upload may still be in progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, log, err := setup()
		if err != nil {
			return err
		}
		grace := config.Reconcile.Grace
		if cmd.Flags().Changed("grace") {
			grace = reconcileFlags.grace
		}

		images, closeStores, err := app.NewImageServiceFromConfig(cmd.Context(), config, log)
		if err != nil {
			return err
		}
		defer closeStores()

		report, err := images.Reconcile(cmd.Context(), app.ReconcileOptions{
			Grace:  grace,
			DryRun: reconcileFlags.dryRun,
		})
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"dangling_records": len(report.DanglingRecords),
			"orphan_objects":   len(report.OrphanObjects),
			"corrupt_records":  len(report.CorruptRecords),
			"young_objects":    len(report.YoungObjects),
			"foreign_objects":  len(report.ForeignObjects),
			"dry_run":          report.DryRun,
		}).Info("reconcile finished")

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileFlags.dryRun, "dry-run", false, "report without deleting anything")
	reconcileCmd.Flags().DurationVar(&reconcileFlags.grace, "grace", 0, "skip blobs younger than this (defaults to RECONCILE_GRACE)")
}
