package mock

import (
	"net/netip"

	"github.com/encodeous/fibbing/state"
)

// MockCfg is the four router cycle of the original fibbing demonstration, with the controller attached to r4
func MockCfg() (state.CentralCfg, state.LocalCfg) {
	central := state.CentralCfg{
		Routers: []state.RouterId{"r1", "r2", "r3", "r4"},
		Links: []state.LinkCfg{
			{A: "r1", B: "r2", Cost: 10},
			{A: "r1", B: "r4", Cost: 1},
			{A: "r2", B: "r3", Cost: 1},
			{A: "r3", B: "r4", Cost: 1},
		},
		Subnets: []state.SubnetCfg{
			{Prefix: netip.MustParsePrefix("10.0.1.0/24"), Router: "r3", Cost: 1},
			{Prefix: netip.MustParsePrefix("10.0.2.0/24"), Router: "r3", Cost: 1},
		},
		Requirements: []state.RequirementCfg{
			{Prefix: netip.MustParsePrefix("10.0.1.0/24"), Path: []state.RouterId{"r1", "r2", "r3"}},
			{Prefix: netip.MustParsePrefix("10.0.2.0/24"), Path: []state.RouterId{"r1", "r4", "r3"}},
		},
	}
	local := state.LocalCfg{
		Id:        "controller",
		Injection: []state.InjectionCfg{{Router: "r4"}},
	}
	return central, local
}
