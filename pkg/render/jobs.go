package render

import (
	"context"
	"fmt"

	"github.com/teslashibe/scv2-services/pkg/ghosting"
	"gocv.io/x/gocv"
)

// SimpleReplay renders snapshots in the given order at the default frame
// rate. With ghost set, every frame is ghosted against the background active
// at the last snapshot. Snapshots that cannot be fetched are skipped.
func (s *Sequencer) SimpleReplay(ctx context.Context, camera string, snapshots []int64, ghost bool) (*Result, error) {
	cfg := ghosting.DefaultConfig()
	cfg.Enabled = ghost

	return s.run(ctx, KindSimpleReplay, len(snapshots), s.defaultFPS, func(j *job) error {
		if len(snapshots) == 0 {
			return fail(ErrorKindInput, ErrNoSnapshots)
		}

		var bg gocv.Mat
		if ghost {
			var err error
			bg, err = s.background(ctx, camera, snapshots[len(snapshots)-1])
			if err != nil {
				return err
			}
			defer bg.Close()
		}

		for i, ems := range snapshots {
			data, ok := s.snapshot(ctx, j, camera, ems)
			if !ok {
				continue
			}
			if !ghost {
				if err := j.writeBytes(i, data); err != nil {
					return err
				}
				continue
			}

			frame, ok := s.decode(j, ems, data)
			if !ok {
				continue
			}
			ghosted, err := ghosting.Apply(cfg, bg, frame)
			frame.Close()
			if err != nil {
				return ghostingFailure(err)
			}
			err = j.writeMat(i, ghosted, ghostJPEGQuality)
			ghosted.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FromInstructions renders one frame per instruction, in the order given.
// Drawing calls compose on each frame in list order. Instructions without a
// snapshot_ems are skipped, as are snapshots that cannot be fetched. The
// ghosting background is keyed by the last instruction's snapshot.
func (s *Sequencer) FromInstructions(ctx context.Context, camera string, instructions []Instruction, fps float64, cfg ghosting.Config) (*Result, error) {
	return s.run(ctx, KindFromInstructions, len(instructions), fps, func(j *job) error {
		if len(instructions) == 0 {
			return fail(ErrorKindInput, ErrNoSnapshots)
		}

		var bg gocv.Mat
		if cfg.Enabled {
			last := instructions[len(instructions)-1].SnapshotEMS
			if last == nil {
				return fail(ErrorKindBackground, ErrNoBackgroundKey)
			}
			var err error
			bg, err = s.background(ctx, camera, *last)
			if err != nil {
				return err
			}
			defer bg.Close()
		}

		for i, inst := range instructions {
			if inst.SnapshotEMS == nil {
				s.logger.Debug("instruction without snapshot_ems skipped", "job_id", j.id, "index", i)
				continue
			}
			ems := *inst.SnapshotEMS

			data, ok := s.snapshot(ctx, j, camera, ems)
			if !ok {
				continue
			}
			frame, ok := s.decode(j, ems, data)
			if !ok {
				continue
			}

			if cfg.Enabled {
				ghosted, err := ghosting.Apply(cfg, bg, frame)
				frame.Close()
				if err != nil {
					return ghostingFailure(err)
				}
				frame = ghosted
			}

			if failed := s.interp.DrawAll(&frame, inst.Drawing); failed > 0 {
				s.logger.Warn("drawing instructions rendered as error frame",
					"job_id", j.id, "snapshot_ems", ems, "failed", failed)
			}

			err := j.writeMat(i, frame, frameJPEGQuality)
			frame.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FromRawFrames encodes pre-encoded images directly, in order.
func (s *Sequencer) FromRawFrames(ctx context.Context, frames [][]byte, fps float64) (*Result, error) {
	return s.run(ctx, KindFromRawFrames, len(frames), fps, func(j *job) error {
		if len(frames) == 0 {
			return fail(ErrorKindInput, ErrNoSnapshots)
		}
		for i, data := range frames {
			if err := j.writeBytes(i, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// background fetches and decodes the reference image for ghosting. Any
// failure is fatal to the job.
func (s *Sequencer) background(ctx context.Context, camera string, targetEMS int64) (gocv.Mat, error) {
	data, err := s.store.BackgroundImage(ctx, camera, targetEMS)
	if err != nil {
		return gocv.Mat{}, fail(ErrorKindBackground, fmt.Errorf("%w: %v", ErrNoBackground, err))
	}
	bg, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || bg.Empty() {
		if err == nil {
			bg.Close()
		}
		return gocv.Mat{}, fail(ErrorKindBackground, fmt.Errorf("%w: undecodable image (%d bytes)", ErrNoBackground, len(data)))
	}
	return bg, nil
}

// snapshot fetches one snapshot. A miss is logged and reported as !ok.
func (s *Sequencer) snapshot(ctx context.Context, j *job, camera string, ems int64) ([]byte, bool) {
	data, err := s.store.SnapshotImage(ctx, camera, ems)
	if err != nil {
		s.logger.Debug("snapshot skipped", "job_id", j.id, "camera", camera, "snapshot_ems", ems, "error", err)
		return nil, false
	}
	return data, true
}

// decode turns snapshot bytes into a frame. Undecodable snapshots are
// treated like misses.
func (s *Sequencer) decode(j *job, ems int64, data []byte) (gocv.Mat, bool) {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || frame.Empty() {
		if err == nil {
			frame.Close()
		}
		s.logger.Warn("undecodable snapshot skipped", "job_id", j.id, "snapshot_ems", ems, "bytes", len(data))
		return gocv.Mat{}, false
	}
	return frame, true
}

// writeMat encodes frame as a JPEG at the given quality and stages it as
// frame i.
func (j *job) writeMat(i int, frame gocv.Mat, quality int) error {
	params := []int{int(gocv.IMWriteJpegQuality), quality}
	if !gocv.IMWriteWithParams(j.framePath(i), frame, params) {
		return fail(ErrorKindFrame, fmt.Errorf("write frame %d: jpeg encode failed", i))
	}
	j.s.emit(Event{Type: EventFrame, JobID: j.id, Kind: j.kind, Frame: i, Total: j.total})
	return nil
}
