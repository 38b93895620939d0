package wtmp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/runreveal/wtmpd/internal/utmp"
	"github.com/segmentio/ksuid"
)

const sourceType = "wtmp"

// rawRecord is the RawLog body of every event.
type rawRecord struct {
	Type   utmp.Type  `json:"type"`
	Record utmp.Entry `json:"record"`
}

// MarshalEntry renders e as {"type": ..., "record": {...}}.
func MarshalEntry(e utmp.Entry) ([]byte, error) {
	return json.Marshal(rawRecord{Type: e.Type(), Record: e})
}

func (s *Source) toEvent(e utmp.Entry) (kawa.Message[types.Event], error) {
	raw, err := MarshalEntry(e)
	if err != nil {
		return kawa.Message[types.Event]{}, fmt.Errorf("wtmp: marshal %s: %w", e.Type(), err)
	}

	ev := types.Event{
		SourceType: sourceType,
		EventTime:  e.EntryTime(),
		EventName:  e.Type().String(),
		Hostname:   s.hostname,
		Tags:       map[string]string{"file": s.path},
		RawLog:     raw,
	}
	if ev.EventTime.IsZero() {
		ev.EventTime = time.Now().UTC()
	}

	switch v := e.(type) {
	case utmp.UserProcess:
		ev.Actor.Username = v.User
		ev.Tags["pid"] = strconv.Itoa(int(v.PID))
		ev.Tags["line"] = v.Line
		ev.Tags["host"] = v.Host
		ev.Tags["session"] = strconv.FormatInt(v.Session, 10)
	case utmp.LoginProcess:
		ev.Actor.Username = v.User
		ev.Tags["pid"] = strconv.Itoa(int(v.PID))
		if v.Line != "" {
			ev.Tags["line"] = v.Line
		}
		if v.Host != "" {
			ev.Tags["host"] = v.Host
		}
	case utmp.DeadProcess:
		ev.Tags["pid"] = strconv.Itoa(int(v.PID))
		ev.Tags["line"] = v.Line
	case utmp.InitProcess:
		ev.Tags["pid"] = strconv.Itoa(int(v.PID))
	case utmp.RunLevel:
		ev.Tags["kernel_version"] = v.KernelVersion
		if cur, prev := v.Level(); cur != 0 {
			ev.Tags["runlevel"] = string(rune(cur))
			if prev != 0 {
				ev.Tags["previous_runlevel"] = string(rune(prev))
			}
		}
	case utmp.BootTime:
		ev.Tags["kernel_version"] = v.KernelVersion
	case utmp.ShutdownTime:
		ev.Tags["kernel_version"] = v.KernelVersion
	}

	return kawa.Message[types.Event]{
		Key:   ksuid.New().String(),
		Value: ev,
	}, nil
}
