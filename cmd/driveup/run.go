package main

import (
	"context"
	"fmt"
	"io"

	"impractical.co/driveup"
	"impractical.co/driveup/config"
	"impractical.co/driveup/gdrive"
	"impractical.co/driveup/memory"
	"yall.in"
	"yall.in/colour"
)

// run performs the upload described by cfg and returns the uploaded
// file's ID.
func run(ctx context.Context, cfg config.Config, logOut io.Writer) (string, error) {
	level := yall.Info
	switch cfg.LogLevel {
	case "debug":
		level = yall.Debug
	case "error":
		level = yall.Error
	}
	log := yall.New(colour.New(logOut, level))
	log = log.WithField("driveup.dry_run", cfg.DryRun)
	ctx = yall.InContext(ctx, log)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	storer, err := newStorer(ctx, cfg)
	if err != nil {
		return "", err
	}
	uploader, err := driveup.NewUploader(storer, cfg.ChecksumAlgorithm)
	if err != nil {
		return "", err
	}
	return uploader.Upload(ctx, cfg.Request())
}

func newStorer(ctx context.Context, cfg config.Config) (driveup.Storer, error) {
	if cfg.DryRun {
		storer, err := memory.NewStorer(cfg.IntegrityAlgorithm)
		if err != nil {
			return nil, err
		}
		_, err = storer.Inject(memory.Node{ID: cfg.ParentFolderID, Name: cfg.ParentFolderID, Kind: driveup.KindFolder})
		if err != nil {
			return nil, fmt.Errorf("error creating dry run parent folder: %w", err)
		}
		return storer, nil
	}
	credentials, err := gdrive.DecodeCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return gdrive.New(ctx, credentials, gdrive.WithDigest(cfg.IntegrityAlgorithm))
}
