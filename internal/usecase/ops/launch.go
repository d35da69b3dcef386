package ops

import (
	"context"
	"path/filepath"
	"time"

	"uetools/internal/domain"
	"uetools/internal/infra/tracer"
	"uetools/internal/usecase/logtail"
	"uetools/internal/usecase/task"
)

const compileDatabase = "compile_commands.json"

// LogPath is the runtime log written by the editor and game for desc.
func LogPath(desc *domain.ProjectDescriptor) string {
	return filepath.Join(desc.Dir, "Saved", "Logs", desc.PrimaryModule()+".log")
}

// Launch starts the editor or the packaged game and streams its log until
// the process exits. For the editor target the Editor build runs first when
// BuildBeforeEdit is set, and a failed build stops the launch. Every step
// uses the session as it was when Launch was called.
func (s *Service) Launch(ctx context.Context, target domain.Target, trace bool) (res domain.TaskResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "ops.launch")
	defer func() { tracer.End(span, err) }()
	span.SetAttributes(tracer.StringAttr("target", string(target)), tracer.BoolAttr("trace", trace))

	snap := s.state.Snapshot()
	if snap.Project == nil {
		return res, s.Report(ctx, "Launch", &domain.MissingFieldError{Field: "project"})
	}

	req := domain.OperationRequest{Kind: domain.OpLaunchGame, Target: domain.TargetGame, Trace: trace}
	if target != domain.TargetGame {
		if s.cfg.BuildBeforeEdit {
			build := domain.OperationRequest{Kind: domain.OpBuildProject, Target: domain.TargetEditor}
			if res, err = s.runAndWaitWith(ctx, snap, build); err != nil {
				return res, err
			}
		}
		req = domain.OperationRequest{Kind: domain.OpOpenEditor, Target: domain.TargetEditor}
	}

	h, err := s.runWith(ctx, snap, req)
	if err != nil {
		return domain.TaskResult{}, err
	}
	if err := s.follow(ctx, h, LogPath(snap.Project)); err != nil {
		return domain.TaskResult{}, err
	}

	res, err = h.Wait(ctx)
	if err != nil {
		return res, err
	}
	if res.Err != nil {
		return res, s.Report(ctx, res.Name, res.Err)
	}
	return res, nil
}

// follow tails path from LogStartDelay after start until h finishes, then
// polls once more so lines written just before exit are not lost.
func (s *Service) follow(ctx context.Context, h *task.Handle, path string) error {
	f := logtail.NewFollower(path, func(lines []domain.ClassifiedLine) {
		s.publish(ctx, domain.EventLogLines, domain.LogLinesPayload{Path: path, Lines: lines})
	})

	if !s.sleep(ctx, s.cfg.LogStartDelay, h.Finished()) {
		return ctx.Err()
	}
	stop := s.tailer.Run(ctx, f)
	defer stop()

	select {
	case <-h.Finished():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := f.Poll(); err != nil {
		s.logger.Warn("final log poll failed", "path", path, "error", err)
	}
	return nil
}

// GenerateClangDatabase deletes any previous compile database, regenerates
// it in the engine root and copies it to <project>/.vscode once it settles.
func (s *Service) GenerateClangDatabase(ctx context.Context) (res domain.TaskResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "ops.clang_database")
	defer func() { tracer.End(span, err) }()

	snap := s.state.Snapshot()
	if err := snap.Require(); err != nil {
		return res, s.Report(ctx, "Generate Clang Database", err)
	}
	src := filepath.Join(snap.Installation.RootPath, compileDatabase)
	dstDir := filepath.Join(snap.Project.Dir, ".vscode")
	dst := filepath.Join(dstDir, compileDatabase)

	for _, p := range []string{src, dst} {
		if err := s.fs.Remove(p); err != nil {
			return res, s.Report(ctx, "Generate Clang Database", domain.WrapOp("remove "+p, err))
		}
	}

	res, err = s.runAndWaitWith(ctx, snap, domain.OperationRequest{Kind: domain.OpGenerateClangDatabase})
	if err != nil {
		return res, err
	}
	if !s.sleep(ctx, s.cfg.ClangSettleDelay, nil) {
		return res, ctx.Err()
	}
	if !s.fs.Exists(src) {
		err = domain.NewSubSystemError("clang", "Ops.GenerateClangDatabase", domain.ErrNotFound, src)
		return res, s.Report(ctx, "Generate Clang Database", err)
	}
	if err := s.fs.MkdirAll(dstDir); err != nil {
		return res, s.Report(ctx, "Generate Clang Database", domain.WrapOp("create "+dstDir, err))
	}
	if err := s.fs.Copy(src, dst); err != nil {
		return res, s.Report(ctx, "Generate Clang Database", domain.WrapOp("copy "+compileDatabase, err))
	}
	s.logger.Info("compile database copied", "from", src, "to", dst)
	return res, nil
}

// sleep waits for d, or until early is closed. It reports false if ctx ended
// first.
func (s *Service) sleep(ctx context.Context, d time.Duration, early <-chan struct{}) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-early:
	case <-ctx.Done():
		return false
	}
	return true
}
