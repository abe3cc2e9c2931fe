package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"multipost/domain/model"
)

// overrideFlags are the per-platform metadata flags, e.g. --tiktok-title.
type overrideFlags struct {
	title       string
	description string
}

func newPublishCommand(newApp AppFactory, opts *options) *cobra.Command {
	var (
		platforms   []string
		requestID   string
		title       string
		description string
		hashtags    []string
		hints       string
		privacy     string
	)
	overrides := map[model.PlatformID]*overrideFlags{
		model.PlatformYouTube:  {},
		model.PlatformFacebook: {},
		model.PlatformTikTok:   {},
	}

	cmd := &cobra.Command{
		Use:   "publish <video>",
		Short: "Upload a video to several platforms at once",
		Long: `Upload one local video to every platform given with -p. Each platform runs
independently; the command exits 0 when at least one platform succeeded and 1 when none did.
Empty title, description or hashtags are filled by the content generator when it is enabled.`,
		Example: `  multipost publish clip.mp4 -p youtube,tiktok --title "Launch day" --hashtags go,release
  multipost publish clip.mp4 -p youtube,facebook --tiktok-title "short title" -o json`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(platforms) == 0 {
				return usageError(errors.New("at least one platform is required (-p)"))
			}
			req := &model.PublishRequest{
				RequestID: requestID,
				Video:     model.Video{Path: args[0]},
				Metadata: model.Metadata{
					Title:       title,
					Description: description,
					Hashtags:    hashtags,
					Extra:       extra(hints, privacy),
				},
			}
			if req.RequestID == "" {
				req.RequestID = uuid.NewString()
			}
			for _, p := range platforms {
				req.Platforms = append(req.Platforms, model.ParsePlatformID(p))
			}
			for p, o := range overrides {
				if o.title == "" && o.description == "" {
					continue
				}
				if req.Overrides == nil {
					req.Overrides = make(map[model.PlatformID]model.Metadata)
				}
				req.Overrides[p] = model.Metadata{Title: o.title, Description: o.description}
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Platforms.Publish(cmd.Context(), req)
			if err != nil {
				if errors.Is(err, model.ErrValidation) {
					return usageError(err)
				}
				return err
			}
			if err := printReport(cmd.OutOrStdout(), opts.output, report); err != nil {
				return err
			}
			if !report.AnySucceeded() {
				return &exitError{code: ExitNoSuccess}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&platforms, "platforms", "p", nil, "Target platforms (youtube, facebook, tiktok)")
	f.StringVar(&requestID, "request-id", "", "Request ID (generated when empty)")
	f.StringVar(&title, "title", "", "Title shared by all platforms")
	f.StringVar(&description, "description", "", "Description shared by all platforms")
	f.StringSliceVar(&hashtags, "hashtags", nil, "Hashtags, comma separated")
	f.StringVar(&hints, "hints", "", "Extra context for the content generator")
	f.StringVar(&privacy, "privacy", "", "Privacy override where the platform supports it")
	for p, o := range overrides {
		f.StringVar(&o.title, fmt.Sprintf("%s-title", p), "", fmt.Sprintf("Title for %s only", p))
		f.StringVar(&o.description, fmt.Sprintf("%s-description", p), "", fmt.Sprintf("Description for %s only", p))
	}
	return cmd
}

func extra(hints, privacy string) map[string]string {
	out := map[string]string{}
	if hints != "" {
		out["hints"] = hints
	}
	if privacy != "" {
		out["privacy"] = privacy
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
