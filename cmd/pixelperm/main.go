// Package main implements the pixelperm command line client, which
// submits a pair of images to the pixel permutation backend, follows the
// job's progress until it completes, fails, or is canceled with Ctrl-C,
// and prints the result artifact URLs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/pixelperm/pixelperm/internal/apiclient"
	"github.com/pixelperm/pixelperm/internal/assetstore"
	"github.com/pixelperm/pixelperm/internal/config"
	"github.com/pixelperm/pixelperm/internal/controller"
	"github.com/pixelperm/pixelperm/internal/domain"
	"github.com/pixelperm/pixelperm/internal/platform/logger"
	"github.com/pixelperm/pixelperm/internal/presenter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pixelperm: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the command line overrides. Unset image paths fall back
// to the images remembered in the local asset store.
type cliFlags struct {
	sourcePath string
	targetPath string
	serverURL  string
	clear      bool

	size     int
	fps      int
	duration float64
	scale    int
	seed     int
	format   string
}

func parseFlags() *cliFlags {
	defaults := domain.DefaultParameters()

	f := &cliFlags{}
	pflag.StringVar(&f.sourcePath, "source", "", "path to the source image (remembered across runs)")
	pflag.StringVar(&f.targetPath, "target", "", "path to the target image (remembered across runs)")
	pflag.StringVar(&f.serverURL, "server", "", "backend base URL (overrides configuration)")
	pflag.BoolVar(&f.clear, "clear", false, "clear remembered images and parameters, then exit")
	pflag.IntVar(&f.size, "size", defaults.Size, "processing size in pixels")
	pflag.IntVar(&f.fps, "fps", defaults.FPS, "animation frames per second")
	pflag.Float64Var(&f.duration, "duration", defaults.Duration, "animation duration in seconds")
	pflag.IntVar(&f.scale, "scale", defaults.Scale, "output scale factor")
	pflag.IntVar(&f.seed, "seed", defaults.Seed, "random seed")
	pflag.StringVar(&f.format, "format", string(defaults.Format), "animation format (mp4 or gif)")
	pflag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.serverURL != "" {
		cfg.Backend.BaseURL = flags.serverURL
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	store, err := assetstore.New(afero.NewOsFs(), cfg.Assets.Dir, log)
	if err != nil {
		return err
	}

	if flags.clear {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("Cleared remembered images and parameters.")
		return nil
	}

	source, err := resolveImage(store, domain.ImageSource, flags.sourcePath)
	if err != nil {
		return err
	}
	target, err := resolveImage(store, domain.ImageTarget, flags.targetPath)
	if err != nil {
		return err
	}

	params := resolveParameters(store, flags)
	if err := domain.ValidateParameters(params); err != nil {
		return err
	}
	if err := store.SaveParameters(params); err != nil {
		log.Warn("failed to remember parameters", "error", err)
	}

	return watch(cfg, log, source, target, params)
}

// watch submits the task and follows it to a terminal state. Ctrl-C
// cancels cooperatively.
func watch(
	cfg *config.Config,
	log *slog.Logger,
	source, target domain.ImagePayload,
	params domain.ParameterSet,
) error {
	client := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, log)
	present := presenter.New(cfg.Backend.BaseURL)

	done := make(chan error, 1)
	events := controller.Events{
		OnProgress: func(display float64, label string, elapsed float64) {
			fmt.Printf("\r%-35s %5.1f%%  (%.1fs)", label, display, elapsed)
		},
		OnCompleted: func(taskID string, elapsed float64) {
			fmt.Printf("\nCompleted in %.1fs\n", elapsed)
			for _, artifact := range presenter.Artifacts {
				url, err := present.ArtifactURL(taskID, artifact)
				if err != nil {
					continue
				}
				fmt.Printf("  %-12s %s\n", artifact, url)
			}
			done <- nil
		},
		OnFailed: func(err error) {
			fmt.Println()
			done <- err
		},
		OnCanceled: func() {
			fmt.Println("\nCanceled.")
			done <- nil
		},
		OnHealth: func(healthy bool) {
			if !healthy {
				fmt.Fprintln(os.Stderr, "warning: backend connectivity degraded")
			}
		},
	}

	ctrl := controller.New(client, controller.Config{
		PollInterval:   cfg.Poll.Interval,
		HealthInterval: cfg.Poll.HealthInterval,
		RequestTimeout: cfg.Backend.RequestTimeout,
	}, events, log)
	ctrl.Start()
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Submitting task...")
	if err := ctrl.Submit(context.Background(), source, target, params); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fmt.Println("\nCanceling...")
		if err := ctrl.Cancel(); err != nil && !errors.Is(err, domain.ErrNoActiveTask) {
			return err
		}
		return nil
	}
}

// resolveImage reads the image from path when given (remembering it for
// next time), and otherwise falls back to the stored one.
func resolveImage(store *assetstore.Store, role, path string) (domain.ImagePayload, error) {
	if path == "" {
		img, err := store.LoadImage(role)
		if errors.Is(err, domain.ErrAssetNotFound) {
			return domain.ImagePayload{}, fmt.Errorf(
				"no %s image: pass --%s or run once with it set", role, role)
		}
		return img, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ImagePayload{}, fmt.Errorf("failed to read %s image: %w", role, err)
	}

	img := domain.NewImagePayload(role, data)
	if err := store.SaveImage(img); err != nil {
		return domain.ImagePayload{}, err
	}
	return img, nil
}

// resolveParameters starts from the remembered set (or defaults) and
// applies any flags the user passed explicitly.
func resolveParameters(store *assetstore.Store, flags *cliFlags) domain.ParameterSet {
	params, err := store.LoadParameters()
	if err != nil {
		params = domain.DefaultParameters()
	}

	pflag.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "size":
			params.Size = flags.size
		case "fps":
			params.FPS = flags.fps
		case "duration":
			params.Duration = flags.duration
		case "scale":
			params.Scale = flags.scale
		case "seed":
			params.Seed = flags.seed
		case "format":
			params.Format = domain.Format(flags.format)
		}
	})
	return params
}
