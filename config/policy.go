package config

import "github.com/mbocsi/tradedash/client"

// Policy builds the stream reconnect policy. Without stop lists it is a plain
// fixed delay that never gives up.
func (r ReconnectConfig) Policy() client.ReconnectPolicy {
	base := client.FixedDelay(r.Delay)
	if len(r.StopOnCloseCodes) == 0 && len(r.StopOnStatuses) == 0 {
		return base
	}
	return client.StopOn{
		Policy:            base,
		CloseCodes:        r.StopOnCloseCodes,
		HandshakeStatuses: r.StopOnStatuses,
	}
}
