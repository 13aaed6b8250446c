// Package sourcectl implements the IRRd source-list controller
// (component C7): switching between the caller's restricted source
// list and the server's defaults, and the non-pipelined fallback retry
// when a restricted-source lookup comes back D (not found).
//
// Grounded on original_source/bgpq_expander.c's
// expander_save_default_sources / expander_switch_sources /
// call_bgpq_expand_irrd, generalized the way the rest of this module
// replaces bgpq3's C-string command buffers with irrproto's command
// builders and a report.Sink instead of stderr.
package sourcectl

import (
	"fmt"

	"github.com/Emeline-1/irrexpand/irrproto"
	"github.com/Emeline-1/irrexpand/report"
)

// Switcher is the minimal synchronous command/response round trip
// sourcectl needs: write one command, read exactly one reply. Both
// connmgr.Conn and test fakes satisfy this via their Codec.
type Switcher interface {
	WriteCommand(cmd string) error
	ReadResponse(callback func(token string)) (irrproto.Response, error)
}

// Controller tracks which source list is currently active on the
// connection and performs the switches spec §4.7 describes.
type Controller struct {
	sw Switcher
	rep report.Sink

	userSources    string
	searchDefault  bool
	defaultsCmd    string // cached "!s<defaults>\n", captured via !s-lc
	userSourcesCmd string // cached "!s<S>\n"

	usingUser bool
}

// New builds a Controller. userSources is the caller-restricted list
// ("" means no restriction, so the controller never switches
// anything); searchDefault enables the fallback-to-defaults retry.
func New(sw Switcher, userSources string, searchDefault bool, rep report.Sink) *Controller {
	if rep == nil {
		rep = report.Discard{}
	}
	c := &Controller{sw: sw, rep: rep, userSources: userSources, searchDefault: searchDefault}
	if userSources != "" {
		c.userSourcesCmd = irrproto.CmdSetSources(userSources)
	}
	return c
}

// Restricted reports whether the caller configured a non-empty source
// restriction at all.
func (c *Controller) Restricted() bool { return c.userSources != "" }

// Prepare must run once, before the first expansion request, per spec
// §4.7: it captures the server's current (default) sources if fallback
// is enabled, then switches to the user's restricted list.
func (c *Controller) Prepare() error {
	if !c.Restricted() {
		return nil
	}
	if c.searchDefault {
		defaults, err := c.queryDefaults()
		if err != nil {
			return err
		}
		c.defaultsCmd = irrproto.CmdSetSources(defaults)
	}
	return c.switchTo(c.userSourcesCmd, true)
}

// queryDefaults issues "!s-lc" and expects an A-framed reply whose
// single token is the server's current source list.
func (c *Controller) queryDefaults() (string, error) {
	if err := c.sw.WriteCommand(irrproto.CmdDefaultSources()); err != nil {
		return "", fmt.Errorf("sourcectl: requesting default sources: %w", err)
	}
	var defaults string
	resp, err := c.sw.ReadResponse(func(tok string) {
		if defaults == "" {
			defaults = tok
		}
	})
	if err != nil {
		return "", fmt.Errorf("sourcectl: reading default sources: %w", err)
	}
	if resp.Kind != irrproto.KindData || defaults == "" {
		return "", fmt.Errorf("sourcectl: unexpected reply to !s-lc: %v", resp.Kind)
	}
	return defaults, nil
}

// switchTo writes cmd and reads exactly one reply, failing fatally
// (per spec §4.7) unless it starts with C.
func (c *Controller) switchTo(cmd string, toUser bool) error {
	if err := c.sw.WriteCommand(cmd); err != nil {
		return fmt.Errorf("sourcectl: switching sources: %w", err)
	}
	resp, err := c.sw.ReadResponse(nil)
	if err != nil {
		return fmt.Errorf("sourcectl: reading source-switch reply: %w", err)
	}
	if resp.Kind != irrproto.KindNoData {
		return fmt.Errorf("sourcectl: source switch to %q rejected with %v", cmd, resp.Kind)
	}
	c.usingUser = toUser
	return nil
}

// RetryOnNotFound runs a non-pipelined request/response cycle and, if
// the caller's source-restricted attempt returns D and fallback is
// enabled, retries once under default sources before switching back to
// the user list — spec §4.7's two-phase retry. attempt must perform
// exactly one request/response round trip and report the Response it
// observed.
func (c *Controller) RetryOnNotFound(attempt func() (irrproto.Response, error)) (irrproto.Response, error) {
	resp, err := attempt()
	if err != nil {
		return resp, err
	}
	if resp.Kind != irrproto.KindNotFound || !c.searchDefault || c.defaultsCmd == "" {
		return resp, nil
	}

	c.rep.Report(report.Debug, "sourcectl: falling back to default sources after D")
	if err := c.switchTo(c.defaultsCmd, false); err != nil {
		return resp, err
	}
	retried, err := attempt()
	if err != nil {
		return retried, err
	}
	if err := c.switchTo(c.userSourcesCmd, true); err != nil {
		return retried, err
	}
	return retried, nil
}

// UsingUserSources reports whether the user-restricted list is
// currently active on the connection.
func (c *Controller) UsingUserSources() bool { return c.usingUser }
