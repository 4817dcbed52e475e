// Package orchestrator drives the multi-step unlock/lock/setting
// protocol against a checked-out device session, correlating each
// round's response to the request that provoked it and forwarding
// anything else to telemetry.
package orchestrator

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/protocol"
	"github.com/scootergw/gateway/pkg/session"
)

const keyDuration = "20"

// Orchestrator executes operator workflows against checked-out
// sessions. One instance is shared process-wide.
type Orchestrator struct {
	registry    *session.Registry
	vendor      string
	stepTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// New builds an Orchestrator bound to registry, stamping outbound
// frames with vendor and bounding every step to stepTimeout.
func New(registry *session.Registry, vendor string, stepTimeout time.Duration, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		vendor:      vendor,
		stepTimeout: stepTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Unlock drives the three-round unlock workflow: request a key,
// confirm the operation with it, and send the terminal acknowledgement.
func (o *Orchestrator) Unlock(imei, userID string) error {
	h, err := o.registry.Checkout(imei)
	if err != nil {
		return err
	}
	defer h.Release()

	t1 := o.now().Unix()
	t2 := t1 + 3

	key, err := o.requestKey(h, "unlock", protocol.OperationUnlock, userID, t1)
	if err != nil {
		return err
	}

	if err := o.confirm(h, "unlock", protocol.CmdUnlockConfirm, key, userID, t2,
		func(msg protocol.Message) bool {
			conf, ok := msg.(protocol.UnlockConfirm)
			return ok && conf.Status == protocol.StatusSuccess && conf.UserID == userID && conf.Timestamp == t2
		}); err != nil {
		return err
	}

	ack := protocol.Encode(o.vendor, imei, protocol.CmdUnlockConfirm)
	if err := h.Send(ack); err != nil {
		return newWorkflowError("unlock", "terminal_ack", err)
	}
	return nil
}

// Lock drives the three-round lock workflow and returns the cycling
// time the device reports for the completed rental.
func (o *Orchestrator) Lock(imei, userID string) (cyclingTime uint32, err error) {
	h, err := o.registry.Checkout(imei)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	t := o.now().Unix()

	key, err := o.requestKey(h, "lock", protocol.OperationLock, userID, t)
	if err != nil {
		return 0, err
	}

	frame := protocol.Encode(o.vendor, imei, protocol.CmdLockConfirm, key)
	if err := h.Send(frame); err != nil {
		return 0, newWorkflowError("lock", "send_key", err)
	}

	deadline := time.Now().Add(o.stepTimeout)
	var confirmed protocol.LockConfirm
	err = o.await(h, deadline, func(msg protocol.Message) bool {
		conf, ok := msg.(protocol.LockConfirm)
		if !ok || conf.Status != protocol.StatusSuccess || conf.UserID != userID {
			return false
		}
		confirmed = conf
		return true
	})
	if err != nil {
		return 0, newWorkflowError("lock", "await_confirm", err)
	}

	ack := protocol.Encode(o.vendor, imei, protocol.CmdLockConfirm)
	if err := h.Send(ack); err != nil {
		return 0, newWorkflowError("lock", "terminal_ack", err)
	}
	return confirmed.CyclingTime, nil
}

// ChangeGear drives the one-round speed-mode setting workflow. The
// headlight and taillight fields are sent as DontSet so only the gear
// changes, per device semantics.
func (o *Orchestrator) ChangeGear(imei string, mode protocol.SpeedMode) error {
	return o.setting(imei, "change_gear", protocol.Setting{
		Headlight:  protocol.ToggleDontSet,
		Mode:       mode,
		Throttle:   protocol.ToggleDontSet,
		Taillights: protocol.ToggleDontSet,
	})
}

// ToggleHeadlight drives the one-round headlight setting workflow,
// symmetric to ChangeGear.
func (o *Orchestrator) ToggleHeadlight(imei string, on bool) error {
	state := protocol.ToggleOff
	if on {
		state = protocol.ToggleOn
	}
	return o.setting(imei, "toggle_headlight", protocol.Setting{
		Headlight:  state,
		Mode:       protocol.SpeedDontSet,
		Throttle:   protocol.ToggleDontSet,
		Taillights: protocol.ToggleDontSet,
	})
}

func (o *Orchestrator) setting(imei, workflow string, want protocol.Setting) error {
	h, err := o.registry.Checkout(imei)
	if err != nil {
		return err
	}
	defer h.Release()

	frame := protocol.Encode(o.vendor, imei, protocol.CmdSetting,
		strconv.Itoa(int(want.Headlight)),
		strconv.Itoa(int(want.Mode)),
		strconv.Itoa(int(want.Throttle)),
		strconv.Itoa(int(want.Taillights)),
	)
	if err := h.Send(frame); err != nil {
		return newWorkflowError(workflow, "send", err)
	}

	deadline := time.Now().Add(o.stepTimeout)
	err = o.await(h, deadline, func(msg protocol.Message) bool {
		echo, ok := msg.(protocol.Setting)
		return ok &&
			echo.Headlight == want.Headlight &&
			echo.Mode == want.Mode &&
			echo.Throttle == want.Throttle &&
			echo.Taillights == want.Taillights
	})
	if err != nil {
		return newWorkflowError(workflow, "await_echo", err)
	}
	return nil
}

// requestKey drives the shared first round of unlock/lock: send an R0
// challenge and await the matching key response.
func (o *Orchestrator) requestKey(h *session.Handle, workflow string, op protocol.Operation, userID string, ts int64) (key string, err error) {
	frame := protocol.Encode(o.vendor, h.IMEI(), protocol.CmdUnlockLockChallenge,
		strconv.Itoa(int(op)), keyDuration, userID, strconv.FormatInt(ts, 10))
	if err := h.Send(frame); err != nil {
		return "", newWorkflowError(workflow, "send_challenge", err)
	}

	deadline := time.Now().Add(o.stepTimeout)
	var extracted string
	err = o.await(h, deadline, func(msg protocol.Message) bool {
		chal, ok := msg.(protocol.UnlockLockChallenge)
		if !ok || chal.Operation != op || chal.UserID != userID || chal.Timestamp != ts {
			return false
		}
		extracted = strconv.Itoa(int(chal.Key))
		return true
	})
	if err != nil {
		return "", newWorkflowError(workflow, "await_key", err)
	}
	return extracted, nil
}

// confirm drives a generic "send, await predicate" round used by the
// unlock workflow's second round (the lock workflow's shares the same
// shape but returns cycling time, so it isn't routed through here).
func (o *Orchestrator) confirm(h *session.Handle, workflow string, code protocol.Command, key, userID string, ts int64, match func(protocol.Message) bool) error {
	frame := protocol.Encode(o.vendor, h.IMEI(), code, key, userID, strconv.FormatInt(ts, 10))
	if err := h.Send(frame); err != nil {
		return newWorkflowError(workflow, "send_confirm", err)
	}

	deadline := time.Now().Add(o.stepTimeout)
	if err := o.await(h, deadline, match); err != nil {
		return newWorkflowError(workflow, "await_confirm", err)
	}
	return nil
}

// await reads frames from h until one satisfies match or deadline
// passes. Frames that don't match are forwarded to telemetry instead
// of being silently dropped, per the at-most-one-match, ignore-others
// contract for interleaved telemetry.
func (o *Orchestrator) await(h *session.Handle, deadline time.Time, match func(protocol.Message) bool) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return session.ErrTimeout
		}
		msg, err := h.Expect(remaining)
		if err != nil {
			return err
		}
		if match(msg) {
			return nil
		}
		h.Forward(msg)
	}
}
