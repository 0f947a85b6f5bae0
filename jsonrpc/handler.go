package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"pifanctrl/curve"
	"pifanctrl/log"
	"pifanctrl/service"
)

// Commands understood by NewHandler.
const (
	CmdSummary  = "summary"
	CmdReadings = "readings"
	CmdSettings = "settings"
	CmdSimulate = "simulate"
	CmdFanSpeed = "fanspeed"
	CmdOverride = "override"
	CmdRelease  = "release"
	CmdReset    = "reset"
	CmdVersion  = "version"
)

// NewHandler serves the fan controller commands. "settings" without a
// parameter returns the current settings and with one replaces them.
func NewHandler(svc *service.Service) HandlerFunc {
	return func(ctx context.Context, req *Request) *Response {
		result, err := dispatch(ctx, svc, req)
		if err != nil {
			log.Warnf("command %q: %v", req.Command, err)
			return Failure(req.Command, err)
		}
		return Success(req.Command, result)
	}
}

func dispatch(ctx context.Context, svc *service.Service, req *Request) (any, error) {
	switch req.Command {
	case CmdSummary:
		return svc.Summary(), nil
	case CmdVersion:
		return svc.Version(), nil
	case CmdReadings:
		var f service.Filter
		if len(req.Parameter) > 0 {
			if err := json.Unmarshal(req.Parameter, &f); err != nil {
				return nil, fmt.Errorf("%w: readings filter: %v", service.ErrInvalidInput, err)
			}
		}
		return svc.Readings(f)
	case CmdSettings:
		if len(req.Parameter) == 0 || string(req.Parameter) == "null" {
			return svc.Settings(), nil
		}
		var s curve.Settings
		if err := json.Unmarshal(req.Parameter, &s); err != nil {
			return nil, fmt.Errorf("%w: settings: %v", service.ErrInvalidInput, err)
		}
		return svc.UpdateSettings(s)
	case CmdSimulate:
		v, err := FloatParam(req.Parameter)
		if err != nil {
			return nil, err
		}
		return nil, svc.Simulate(v)
	case CmdFanSpeed:
		v, err := FloatParam(req.Parameter)
		if err != nil {
			return nil, err
		}
		return svc.SetFanSpeed(v)
	case CmdOverride:
		v, err := FloatParam(req.Parameter)
		if err != nil {
			return nil, err
		}
		return nil, svc.Override(ctx, v)
	case CmdRelease:
		return nil, svc.Release(ctx)
	case CmdReset:
		return svc.Reset(), nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", service.ErrInvalidInput, req.Command)
}
