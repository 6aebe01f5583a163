package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/db"
	"github.com/dreamup/visionclick/internal/desktop"
	"github.com/dreamup/visionclick/internal/reporter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	firefoxTarget         = "Firefox icon"
	firefoxMarkerDuration = 10 * time.Second
)

var (
	// Locate command flags
	target         string
	existingShot   string
	typeText       string
	actionName     string
	testFirefox    bool
	resolveOnly    bool
	browserURL     string
	headless       bool
	viewportWidth  int
	viewportHeight int
	reportPath     string
	uploadReport   bool
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find a UI element with the vision model and point at it",
	Long: `Capture the screen (or reuse an existing screenshot), ask the vision model
where the target element is, then hover, click or double-click it and
optionally type text. Newlines in --text press Enter.`,
	Example: `  visionclick locate -t "Download button"
  visionclick locate -t "Search field" --action click --text "cats\n"
  visionclick locate -s screenshot.png -t "Close button" --resolve-only
  visionclick locate --test-firefox`,
	RunE: runLocate,
}

func init() {
	f := locateCmd.Flags()
	f.StringVarP(&target, "target", "t", "", "UI element to locate (e.g. 'Download button')")
	f.StringP("model", "m", agent.DefaultVisionModel, "Vision model")
	f.StringP("api-key", "k", "", "OpenAI API key (default $OPENAI_API_KEY)")
	f.String("base-url", "", "OpenAI-compatible endpoint override")
	f.Int("max-dimension", agent.DefaultMaxDimension, "Downscale fresh captures so the larger side fits")
	f.StringVarP(&existingShot, "screenshot", "s", "", "Use an existing screenshot file instead of capturing")
	f.StringVar(&typeText, "text", "", "Text to type afterwards (\\n presses Enter)")
	f.StringVarP(&actionName, "action", "a", string(agent.ActionHover), "Pointer action: hover, click or double-click")
	f.BoolVar(&testFirefox, "test-firefox", false, "Preset: find the Firefox icon and double-click it with a 10s marker")
	f.BoolVar(&resolveOnly, "resolve-only", false, "Print the coordinates without moving the pointer")
	f.StringVar(&browserURL, "browser-url", "", "Drive a Chrome page at this URL instead of the desktop")
	f.BoolVar(&headless, "headless", false, "Run the browser headless (with --browser-url)")
	f.IntVar(&viewportWidth, "viewport-width", agent.DefaultViewportWidth, "Browser viewport width")
	f.IntVar(&viewportHeight, "viewport-height", agent.DefaultViewportHeight, "Browser viewport height")
	f.StringVarP(&reportPath, "report", "r", "", "Write a JSON run report to this path")
	f.BoolVar(&uploadReport, "upload", false, "Upload the screenshot and report to S3")
	f.String("s3-bucket", "", "S3 bucket for --upload (default $S3_BUCKET_NAME)")
	f.String("s3-region", "", "S3 region for --upload (default $AWS_REGION)")

	viper.BindPFlag("model", f.Lookup("model"))
	viper.BindPFlag("api_key", f.Lookup("api-key"))
	viper.BindPFlag("base_url", f.Lookup("base-url"))
	viper.BindPFlag("max_dimension", f.Lookup("max-dimension"))
	viper.BindPFlag("s3_bucket", f.Lookup("s3-bucket"))
	viper.BindPFlag("s3_region", f.Lookup("s3-region"))
}

func runLocate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	intent := agent.ActionIntent{Text: unescapeText(typeText), MarkerDuration: cfg.MarkerDuration}
	if testFirefox {
		target = firefoxTarget
		intent = agent.ActionIntent{Mode: agent.ActionDoubleClick, MarkerDuration: firefoxMarkerDuration}
	} else {
		if target == "" {
			return agent.NewConfigError("--target is required unless --test-firefox is used")
		}
		mode, err := agent.ParseActionMode(actionName)
		if err != nil {
			return agent.NewConfigError(err.Error())
		}
		intent.Mode = mode
	}

	// Credentials are checked before anything is captured
	resolver, err := agent.NewVisionResolver(cfg.ResolverConfig(), logger)
	if err != nil {
		return err
	}

	var history *db.Database
	if cfg.HistoryDB != "" {
		history, err = db.New(cfg.HistoryDB)
		if err != nil {
			return agent.NewStorageError("failed to open history database", err)
		}
		defer history.Close()
	}

	fmt.Printf("🎯 visionclick v%s\n", version)
	fmt.Printf("   Target: %s\n", target)
	fmt.Printf("   Model:  %s\n", resolver.Model())

	capturer, driver, cleanup, err := selectBackend()
	if err != nil {
		return err
	}
	defer cleanup()

	preparer := agent.NewImagePreparer(capturer, logger,
		agent.WithMaxDimension(cfg.MaxDimension),
		agent.WithScreenshotPath(cfg.ScreenshotPath),
	)
	locator := agent.NewLocator(preparer, resolver, logger)
	builder := reporter.NewReportBuilder(target)
	builder.AddMetadata("version", version)

	var result *agent.LocateResult
	var runErr error
	if resolveOnly {
		result, runErr = locator.Locate(ctx, target, existingShot)
	} else {
		result, runErr = locator.Run(ctx, target, existingShot, agent.NewDispatcher(driver, logger), intent)
	}
	builder.SetResult(result)

	if result != nil {
		shot := result.Screenshot
		fmt.Printf("📷 Screenshot %s (%dx%d, %s)\n", shot.Filepath, shot.Width, shot.Height, shot.Origin)
		fmt.Printf("\n=== 🔵 RAW MODEL ANSWER ===\n%s\n\n", result.Resolution.Raw)
		coord := result.Coordinate()
		fmt.Printf("✅ Coordinates: (%d, %d)\n", coord.X, coord.Y)

		if runErr == nil && !resolveOnly {
			builder.SetAction(intent.Mode, intent.Text)
			fmt.Printf("🐱 %s at (%d, %d)\n", intent.Mode, coord.X, coord.Y)
		}
	}

	if runErr != nil {
		builder.SetError(runErr)
		var catErr *agent.CategorizedError
		if errors.As(runErr, &catErr) && catErr.Raw != "" {
			fmt.Printf("\n=== 🔴 UNPARSEABLE MODEL ANSWER ===\n%s\n\n", catErr.Raw)
		}
	}

	report := builder.Build()
	finishRun(ctx, report, result, history)

	return runErr
}

// unescapeText turns a literal \n typed on the command line into a newline
func unescapeText(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// selectBackend is swapped out in tests
var selectBackend = openBackend

// openBackend picks the desktop or the browser capturer/driver pair
func openBackend() (agent.Capturer, agent.Driver, func(), error) {
	if browserURL == "" {
		return desktop.NewCapturer(), desktop.NewDriver(), func() {}, nil
	}

	fmt.Printf("🌐 Opening %s...\n", browserURL)
	bm, err := agent.NewBrowserManager(headless, viewportWidth, viewportHeight)
	if err != nil {
		return nil, nil, nil, agent.NewCaptureError("failed to create browser manager", err)
	}
	if err := bm.NavigateWithTimeout(browserURL, 45*time.Second); err != nil {
		bm.Close()
		return nil, nil, nil, agent.NewCaptureError("failed to load page", err)
	}
	return bm.Capturer(), bm.Driver(), bm.Close, nil
}

// finishRun persists the report; failures here never change the run outcome
func finishRun(ctx context.Context, report *reporter.Report, result *agent.LocateResult, history *db.Database) {
	if reportPath != "" {
		if err := report.SaveToFile(reportPath); err != nil {
			logger.Warn("Failed to save report", zap.Error(err))
		} else {
			fmt.Printf("📝 Report saved to %s\n", reportPath)
		}
	}

	if uploadReport {
		var shot *agent.Screenshot
		if result != nil {
			shot = result.Screenshot
		}
		uploader, err := reporter.NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			logger.Warn("S3 upload skipped", zap.Error(err))
		} else if url, err := uploader.UploadRunArtifacts(ctx, report, shot); err != nil {
			logger.Warn("S3 upload failed", zap.Error(err))
		} else {
			fmt.Printf("☁️  Report uploaded to %s\n", url)
		}
	}

	if history != nil {
		if err := history.CreateRun(report.RunRecord()); err != nil {
			logger.Warn("Failed to record run history", zap.Error(err))
		}
	}
}
