package smb

import (
	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

// Status exposes the adapter to the HTTP status endpoints.
func (s *Adapter) Status() handlers.StatusProvider {
	return status{s}
}

type status struct {
	a *Adapter
}

func (st status) Ready() bool {
	select {
	case <-st.a.Shutdown:
		return false
	default:
	}
	select {
	case <-st.a.ListenerReady:
		return true
	default:
		return false
	}
}

func (st status) ActiveConnections() int32 {
	return st.a.GetActiveConnections()
}

func (st status) Sessions() []handlers.SessionInfo {
	sessions := st.a.Sessions()
	out := make([]handlers.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := handlers.SessionInfo{
			ID:         sess.ID,
			ClientAddr: sess.ClientAddr,
			Username:   sess.Username,
			Domain:     sess.Domain,
			Guest:      sess.Guest,
			Mechanism:  sess.Mechanism,
			CreatedAt:  sess.CreatedAt,
		}
		if sec := sess.Security; sec != nil {
			info.Dialect = sec.Dialect().String()
			info.Signed = sec.ShouldSign()
		}
		out = append(out, info)
	}
	return out
}
