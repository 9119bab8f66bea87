package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	err := NameValidator(node.Id)
	if err != nil {
		return err
	}
	seen := make(map[RouterId]struct{})
	for _, inj := range node.Injection {
		if err := NameValidator(string(inj.Router)); err != nil {
			return err
		}
		if _, ok := seen[inj.Router]; ok {
			return fmt.Errorf("duplicate injection point: %s", inj.Router)
		}
		seen[inj.Router] = struct{}{}
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return err
		}
	}
	if node.Socket != "" {
		if err := PathValidator(node.Socket); err != nil {
			return err
		}
	}
	lo, hi := node.RetryBounds()
	if lo <= 0 || hi <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	return nil
}

func CentralConfigValidator(cfg *CentralCfg) error {
	for _, r := range cfg.Routers {
		if err := NameValidator(string(r)); err != nil {
			return err
		}
	}
	seen := make(map[Pair[RouterId, RouterId]]struct{})
	for _, l := range cfg.Links {
		key := MakeSortedPair(l.A, l.B)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate link found: %s, %s", key.V1, key.V2)
		}
		seen[key] = struct{}{}
	}
	topo, err := cfg.BuildTopology()
	if err != nil {
		return err
	}
	reg := NewRegistry()
	for _, req := range cfg.PathRequirements() {
		if _, err := reg.Add(topo, req); err != nil {
			return err
		}
	}
	return nil
}

// InjectionValidator checks that every injection point exists and that its link can never become a transit route
func InjectionValidator(cfg *CentralCfg, node *LocalCfg) error {
	topo, err := cfg.BuildTopology()
	if err != nil {
		return err
	}
	bound := topo.DiameterBound()
	for _, inj := range node.InjectionPoints(topo.Routers()) {
		if !topo.HasRouter(inj.Router) {
			return fmt.Errorf("injection point %s is not a router", inj.Router)
		}
		if uint64(inj.Cost) <= bound {
			return fmt.Errorf("injection cost %d at %s does not exceed the network diameter bound %d", inj.Cost, inj.Router, bound)
		}
	}
	return nil
}
