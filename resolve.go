package driveup

import (
	"context"
	"fmt"
	"strings"

	"yall.in"
)

// SplitPath splits a slash-separated target path into its segments,
// dropping empty segments. The last segment is the leaf file name; all
// others are folders.
func SplitPath(target string) []string {
	var segments []string
	for _, segment := range strings.Split(target, "/") {
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

// ResolveFolder returns the ID of the folder named name inside the folder
// parentID, creating it if it doesn't exist. If more than one folder
// matches, an *AmbiguousError is returned and nothing is created.
func ResolveFolder(ctx context.Context, s Storer, parentID, name string) (string, error) {
	log := yall.FromContext(ctx)
	log = log.WithField("driveup.parent_id", parentID)
	log = log.WithField("driveup.folder", name)

	match, err := lookup(ctx, s, Query{ParentID: parentID, Name: name, Kind: KindFolder})
	if err != nil {
		return "", err
	}
	log = log.WithField("driveup.match", match.State.String())

	switch match.State {
	case MatchNone:
		log.Debug("[driveup] creating folder")
		folder, err := s.CreateFolder(yall.InContext(ctx, log), parentID, name)
		if err != nil {
			return "", fmt.Errorf("error creating folder %q under folder %q: %w", name, parentID, err)
		}
		if folder.ID == "" {
			return "", fmt.Errorf("error creating folder %q under folder %q: %w", name, parentID, ErrNoID)
		}
		log.WithField("driveup.folder_id", folder.ID).Debug("[driveup] folder created")
		return folder.ID, nil
	case MatchOne:
		log.WithField("driveup.folder_id", match.Node.ID).Debug("[driveup] folder exists")
		return match.Node.ID, nil
	case MatchMany:
		return "", &AmbiguousError{Name: name, ParentID: parentID, Kind: KindFolder, Count: match.Count}
	}
	return "", fmt.Errorf("unexpected match state %s", match.State)
}

// ResolvePath resolves each folder in folders in order, starting from
// rootID, and returns the ID of the innermost folder. Each folder is
// looked up inside the previous one, so the calls are made one at a time.
// An empty folders returns rootID.
func ResolvePath(ctx context.Context, s Storer, rootID string, folders []string) (string, error) {
	parentID := rootID
	for _, name := range folders {
		id, err := ResolveFolder(ctx, s, parentID, name)
		if err != nil {
			return "", err
		}
		parentID = id
	}
	return parentID, nil
}
