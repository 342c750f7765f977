package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// ErrReferenceFailed marks a profile skipped because the profile whose
// outputs it consumes did not build.
var ErrReferenceFailed = errors.New("referenced profile failed")

// ErrDuplicateOutput marks a variant that would overwrite a file another
// variant of the same phase writes.
var ErrDuplicateOutput = errors.New("duplicate output name")

// Runner builds the profiles of one packaging file.
type Runner struct {
	Packaging  *config.PackagingFile
	WorkRoot   string
	OutputRoot string
	Workers    int
	// FailFast stops scheduling new variants after the first failure.
	// Otherwise every independent variant runs and all failures are
	// returned joined.
	FailFast   bool
	Toolchains config.ToolchainConfig
	Renderer   stage.Renderer
	// Progress receives a progress bar when set.
	Progress io.Writer
}

// Report lists the outputs of every profile that built.
type Report struct {
	Outputs map[string][]Output
	Failed  []string
}

// All returns every output ordered by path.
func (r *Report) All() []Output {
	var all []Output
	for _, outs := range r.Outputs {
		all = append(all, outs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all
}

type job struct {
	profile *config.Profile
	builder Builder
	index   int
	row     map[string]string
}

// Plan returns the profiles to build in dependency order: referenced
// profiles of the selection are pulled in and come first.
func (r *Runner) Plan(names ...string) ([][]*config.Profile, error) {
	log := logger.Logger()
	pf := r.Packaging
	snapshot := pf.Project.Snapshot

	selected := make(map[string]bool)
	var add func(name string, explicit bool) error
	add = func(name string, explicit bool) error {
		p := pf.Profile(name)
		if p == nil {
			return fmt.Errorf("unknown profile %q", name)
		}
		if !p.Enabled(snapshot) {
			if !explicit {
				return fmt.Errorf("profile %s is referenced but not active", name)
			}
			log.Infof("Skipping inactive profile %s", name)
			return nil
		}
		if selected[name] {
			return nil
		}
		selected[name] = true
		if ref := p.Ref(); ref != "" {
			return add(ref, false)
		}
		return nil
	}

	if len(names) == 0 {
		for _, p := range pf.Profiles {
			names = append(names, p.Name)
		}
	}
	for _, n := range names {
		if err := add(n, true); err != nil {
			return nil, err
		}
	}

	var first, second []*config.Profile
	for _, p := range pf.Profiles {
		if !selected[p.Name] {
			continue
		}
		if p.Ref() == "" {
			first = append(first, p)
		} else {
			second = append(second, p)
		}
	}
	return [][]*config.Profile{first, second}, nil
}

// Run builds the named profiles, or all active ones.
func (r *Runner) Run(ctx context.Context, names ...string) (*Report, error) {
	log := logger.Logger()
	phases, err := r.Plan(names...)
	if err != nil {
		return nil, err
	}
	renderer := r.Renderer
	if renderer == nil {
		renderer = stage.TemplateRenderer{}
	}
	resolver := source.NewResolver(r.Packaging.BaseDir, r.Packaging.Project.Snapshot, stage.RenderFunc(renderer))
	log.Debugf("Packaging run %s", resolver.RunID)

	var phaseJobs [][]job
	total := 0
	for _, profiles := range phases {
		jobs, err := r.jobs(profiles)
		if err != nil {
			return nil, err
		}
		phaseJobs = append(phaseJobs, jobs)
		total += len(jobs)
	}

	bar := r.progressBar(total)
	report := &Report{Outputs: make(map[string][]Output)}
	var errs []error
	for _, jobs := range phaseJobs {
		if err := r.prepareOutputs(jobs); err != nil {
			return report, err
		}
		phaseErrs := r.runPhase(ctx, jobs, resolver, renderer, report, bar)
		errs = append(errs, phaseErrs...)
		if len(phaseErrs) > 0 && r.FailFast {
			break
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	sort.Strings(report.Failed)
	return report, errors.Join(errs...)
}

func (r *Runner) jobs(profiles []*config.Profile) ([]job, error) {
	var jobs []job
	for _, p := range profiles {
		b, ok := Get(p.Kind)
		if !ok {
			return nil, fmt.Errorf("no builder registered for kind %q (profile %s)", p.Kind, p.Name)
		}
		rows := p.Matrix.Resolve()
		for i, row := range rows {
			idx := i
			if p.Matrix.IsEmpty() {
				idx = -1
			}
			jobs = append(jobs, job{profile: p, builder: b, index: idx, row: row})
		}
	}
	return jobs, nil
}

// prepareOutputs recreates each profile's output directory once, before
// its variants run concurrently.
func (r *Runner) prepareOutputs(jobs []job) error {
	done := make(map[string]bool)
	for _, j := range jobs {
		dir := r.outputDir(j.profile)
		if done[dir] {
			continue
		}
		done[dir] = true
		if err := file.RecreateDir(dir); err != nil {
			return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
	}
	return nil
}

func (r *Runner) outputDir(p *config.Profile) string {
	return filepath.Join(r.OutputRoot, string(p.Kind), p.Name)
}

func (r *Runner) workDir(p *config.Profile, index int) string {
	dir := filepath.Join(r.WorkRoot, string(p.Kind), p.Name)
	if index >= 0 {
		dir = filepath.Join(dir, strconv.Itoa(index))
	}
	return dir
}

func (r *Runner) runPhase(ctx context.Context, jobs []job, resolver *source.Resolver, renderer stage.Renderer,
	report *Report, bar *progressbar.ProgressBar) []error {
	log := logger.Logger()
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		errs   []error
		failed = make(map[string]bool)
		claims = make(map[string]string)
	)
	for _, name := range report.Failed {
		failed[name] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if bar != nil {
				bar.Describe(j.profile.Name)
			}

			var refs []Output
			var err error
			mu.Lock()
			if ref := j.profile.Ref(); ref != "" {
				if failed[ref] {
					err = fmt.Errorf("profile %s: %w: %s", j.profile.Name, ErrReferenceFailed, ref)
				}
				refs = append(refs, report.Outputs[ref]...)
			}
			mu.Unlock()

			var outs []Output
			if err == nil {
				outs, err = r.runVariant(j, refs, resolver, renderer, func(path string) error {
					mu.Lock()
					defer mu.Unlock()
					if owner, ok := claims[path]; ok {
						return fmt.Errorf("%w: %s is also written by %s", ErrDuplicateOutput, filepath.Base(path), owner)
					}
					claims[path] = variantName(j)
					return nil
				})
			}
			if bar != nil {
				_ = bar.Add(1)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Errorf("Packaging %s failed: %v", variantName(j), err)
				if !failed[j.profile.Name] {
					failed[j.profile.Name] = true
					report.Failed = append(report.Failed, j.profile.Name)
				}
				errs = append(errs, err)
				if r.FailFast {
					return err
				}
				return nil
			}
			report.Outputs[j.profile.Name] = append(report.Outputs[j.profile.Name], outs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil && len(errs) == 0 {
		errs = append(errs, err)
	}

	for name := range report.Outputs {
		outs := report.Outputs[name]
		sort.Slice(outs, func(i, k int) bool { return outs[i].Path < outs[k].Path })
	}
	return errs
}

func variantName(j job) string {
	if j.index < 0 {
		return j.profile.Name
	}
	return fmt.Sprintf("%s[%d]", j.profile.Name, j.index)
}

// runVariant stages and builds one variant. claim reserves an output file
// within the phase. The returned error is the single terminal failure of
// the attempt.
func (r *Runner) runVariant(j job, refs []Output, resolver *source.Resolver, renderer stage.Renderer,
	claim func(path string) error) ([]Output, error) {
	log := logger.With("profile", j.profile.Name, "kind", string(j.profile.Kind), "variant", j.index)
	start := time.Now()

	target, err := variantTarget(j.profile, j.row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", variantName(j), err)
	}
	c := &Context{
		Packaging:  r.Packaging,
		Profile:    j.profile,
		Builder:    j.builder,
		Toolchains: r.Toolchains,
		Index:      j.index,
		Variant:    j.row,
		Target:     target,
		WorkDir:    r.workDir(j.profile, j.index),
		OutputDir:  r.outputDir(j.profile),
		Resolver:   resolver,
		Renderer:   renderer,
		Refs:       refs,
		claim:      claim,
	}
	c.Props = c.commonProps()
	log.Infof("Packaging %s (%s) for %s", c.Name(), j.profile.Kind, displayPlatform(target))

	if err := j.builder.FillProperties(c); err != nil {
		return nil, fmt.Errorf("%s: filling properties: %w", c.Name(), err)
	}
	name, err := j.builder.ResolveOutputName(c)
	if err != nil {
		return nil, fmt.Errorf("%s: resolving output name: %w", c.Name(), err)
	}
	c.SetProp(PropOutputName, name)

	if stager, ok := j.builder.(Stager); ok {
		if err := stage.Prepare(c.WorkDir); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		if err := stager.Stage(c); err != nil {
			return nil, fmt.Errorf("%s: staging: %w", c.Name(), err)
		}
	} else {
		if c.Staged, err = c.StageInto(c.WorkDir); err != nil {
			return nil, fmt.Errorf("%s: staging: %w", c.Name(), err)
		}
	}

	outs, err := j.builder.Build(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	log.Infof("Packaged %s in %s (%d artifacts)", c.Name(), time.Since(start).Round(time.Millisecond), len(outs))
	return outs, nil
}

func displayPlatform(t platform.Tag) string {
	if t.IsEmpty() {
		return "any platform"
	}
	return string(t)
}

func (r *Runner) progressBar(total int) *progressbar.ProgressBar {
	if r.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.Progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
