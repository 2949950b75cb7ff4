// Package presenter builds the download and view URLs for the artifacts
// of a completed task. It is plain string templating over the backend's
// result endpoint; the controller hands it a completed task id and it
// does the rest.
package presenter

import (
	"fmt"
	"strings"

	"github.com/pixelperm/pixelperm/internal/domain"
)

// Artifact names served by the result endpoint.
type Artifact string

const (
	ArtifactAnimation  Artifact = "animation"
	ArtifactFinalImage Artifact = "final_image"
	ArtifactDiagnostic Artifact = "diagnostic"
	ArtifactMapping    Artifact = "mapping"
)

// Artifacts lists every artifact a completed task produces, in display
// order.
var Artifacts = []Artifact{
	ArtifactAnimation,
	ArtifactFinalImage,
	ArtifactDiagnostic,
	ArtifactMapping,
}

// Presenter turns a completed task id into artifact URLs.
type Presenter struct {
	baseURL string
}

// New creates a Presenter for the backend at baseURL.
func New(baseURL string) *Presenter {
	return &Presenter{baseURL: strings.TrimRight(baseURL, "/")}
}

// ArtifactURL returns the retrieval URL for one artifact of the task.
func (p *Presenter) ArtifactURL(taskID string, artifact Artifact) (string, error) {
	if taskID == "" {
		return "", domain.ErrNoActiveTask
	}
	if !validArtifact(artifact) {
		return "", fmt.Errorf("unknown artifact %q", artifact)
	}
	return fmt.Sprintf("%s/result/%s/%s", p.baseURL, taskID, artifact), nil
}

// DownloadName suggests a local filename for the artifact, matching the
// names the backend attaches to its downloads.
func DownloadName(artifact Artifact, format domain.Format) (string, error) {
	switch artifact {
	case ArtifactAnimation:
		return fmt.Sprintf("pixel_animation.%s", format), nil
	case ArtifactFinalImage:
		return "final_reconstructed_image.png", nil
	case ArtifactDiagnostic:
		return "diagnostic.png", nil
	case ArtifactMapping:
		return "mapping.json", nil
	default:
		return "", fmt.Errorf("unknown artifact %q", artifact)
	}
}

func validArtifact(a Artifact) bool {
	switch a {
	case ArtifactAnimation, ArtifactFinalImage, ArtifactDiagnostic, ArtifactMapping:
		return true
	}
	return false
}
