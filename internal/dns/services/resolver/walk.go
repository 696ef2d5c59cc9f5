package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/valarpirai/dns-resolver/internal/dns/common/utils"
	"github.com/valarpirai/dns-resolver/internal/dns/domain"
)

// walkOutcome classifies one upstream response during the iterative walk.
type walkOutcome int

const (
	outcomeAnswer   walkOutcome = iota // terminal records for the question
	outcomeCname                       // alias to chase from the roots
	outcomeReferral                    // delegation to lower nameservers
	outcomeNegative                    // authoritative empty answer
	outcomeUnusable                    // nothing to act on; try the next server
)

// classified is the tagged result of classifying a response.
type classified struct {
	outcome walkOutcome
	answers []domain.ResourceRecord
	cname   string   // alias target when outcome is outcomeCname
	nsNames []string // authority NS names when outcome is outcomeReferral
	glue    []string // glue A addresses matching nsNames, may be empty
	rcode   domain.RCode
}

// visitKey identifies one (question, nameserver) attempt; no triple is
// queried twice within a single resolution.
type visitKey struct {
	name   string
	rrtype domain.RRType
	ns     string
}

// walkState carries the mutable bookkeeping of a single top-level resolution.
type walkState struct {
	queriesMade     int
	maxDepthReached int
	visited         map[visitKey]struct{}
}

func newWalkState() *walkState {
	return &walkState{visited: map[visitKey]struct{}{}}
}

// observe records the deepest level reached.
func (st *walkState) observe(depth int) {
	if depth > st.maxDepthReached {
		st.maxDepthReached = depth
	}
}

// visit marks a (question, nameserver) attempt, returning false on a revisit.
func (st *walkState) visit(q domain.Question, ns string) bool {
	k := visitKey{name: utils.CanonicalDNSName(q.Name), rrtype: q.Type, ns: ns}
	if _, seen := st.visited[k]; seen {
		return false
	}
	st.visited[k] = struct{}{}
	return true
}

// iterate runs the referral walk for one question. The loop state is the
// (question, nameserver list, depth) tuple: referrals replace the list and
// descend; CNAME targets and glue-less NS names re-enter iterate from the
// roots at depth+1. Depth is passed down to sub-resolutions and bounded by
// maxDepth; st records the deepest level reached.
func (r *Resolver) iterate(ctx context.Context, st *walkState, q domain.Question, nsList []string, depth int) ([]domain.ResourceRecord, domain.RCode, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, domain.RCodeServFail, fmt.Errorf("resolution deadline: %w", err)
		}
		if depth > r.maxDepth {
			return nil, domain.RCodeServFail, fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, q.Name, depth)
		}
		st.observe(depth)

		descended := false
		for _, ns := range nsList {
			if !st.visit(q, ns) {
				continue
			}

			st.queriesMade++
			resp, err := r.client.Query(ctx, ns, q)
			if err != nil {
				r.logger.Debug(map[string]any{
					"ns":    ns,
					"name":  q.Name,
					"depth": depth,
					"error": err.Error(),
				}, "Nameserver query failed")
				if ctx.Err() != nil {
					return nil, domain.RCodeServFail, fmt.Errorf("resolution deadline: %w", ctx.Err())
				}
				continue
			}

			cl := classify(resp, q)
			switch cl.outcome {
			case outcomeAnswer:
				r.logger.Debug(map[string]any{
					"ns":      ns,
					"name":    q.Name,
					"depth":   depth,
					"answers": len(cl.answers),
				}, "Got answer")
				return cl.answers, domain.RCodeNoError, nil

			case outcomeCname:
				return r.followCname(ctx, st, q, cl, ns, depth)

			case outcomeReferral:
				next := cl.glue
				if len(next) == 0 {
					next, err = r.resolveNSNames(ctx, st, cl.nsNames, depth+1)
					if err != nil {
						return nil, domain.RCodeServFail, err
					}
					if len(next) == 0 {
						// dead-end delegation; try the next server at this level
						continue
					}
				}
				r.logger.Debug(map[string]any{
					"ns":          ns,
					"name":        q.Name,
					"depth":       depth,
					"nameservers": len(next),
					"glue":        len(cl.glue) > 0,
				}, "Following referral")
				nsList = next
				depth++
				descended = true

			case outcomeNegative:
				r.logger.Debug(map[string]any{
					"ns":    ns,
					"name":  q.Name,
					"depth": depth,
					"rcode": cl.rcode.String(),
				}, "Authoritative negative answer")
				return nil, cl.rcode, nil

			case outcomeUnusable:
				continue
			}
			if descended {
				break
			}
		}
		if !descended {
			return nil, domain.RCodeServFail, fmt.Errorf("%w: %s at depth %d", ErrNoNameservers, q.Name, depth)
		}
	}
}

// followCname chases an alias: the target is resolved from the roots at
// depth+1 and the CNAME records are prepended to whatever it yields.
func (r *Resolver) followCname(ctx context.Context, st *walkState, q domain.Question, cl classified, ns string, depth int) ([]domain.ResourceRecord, domain.RCode, error) {
	r.logger.Debug(map[string]any{
		"ns":     ns,
		"name":   q.Name,
		"target": cl.cname,
		"depth":  depth,
	}, "Following CNAME")

	subQ := domain.Question{Name: cl.cname, Type: q.Type, Class: q.Class}
	subAnswers, subRcode, err := r.iterate(ctx, st, subQ, r.roots, depth+1)
	if err != nil {
		return nil, domain.RCodeServFail, err
	}

	combined := make([]domain.ResourceRecord, 0, len(cl.answers)+len(subAnswers))
	combined = append(combined, cl.answers...)
	combined = append(combined, subAnswers...)
	if len(subAnswers) == 0 && subRcode != domain.RCodeNoError {
		return combined, subRcode, nil
	}
	return combined, domain.RCodeNoError, nil
}

// resolveNSNames resolves glue-less referral NS names to IPv4 addresses by a
// fresh recursion from the roots. The first name that yields addresses wins.
// Depth exhaustion and deadline expiry abort the resolution; a name that
// merely fails to resolve is skipped.
func (r *Resolver) resolveNSNames(ctx context.Context, st *walkState, nsNames []string, depth int) ([]string, error) {
	for _, nsName := range nsNames {
		subQ := domain.Question{Name: nsName, Type: domain.RRTypeA, Class: domain.RRClassIN}
		answers, _, err := r.iterate(ctx, st, subQ, r.roots, depth)
		if err != nil {
			if errors.Is(err, ErrDepthExceeded) || ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		var ips []string
		for _, rr := range answers {
			if rr.Type == domain.RRTypeA && rr.Text != "" {
				ips = append(ips, rr.Text)
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
	return nil, nil
}

// classify inspects an upstream response and decides the next move.
// Truncated responses are classified like any other: if they still carry
// answers or referral data they are usable, otherwise they fall through to
// outcomeUnusable and the next nameserver is tried.
func classify(resp domain.Message, q domain.Question) classified {
	if resp.Header.RCode == domain.RCodeNXDomain {
		return classified{outcome: outcomeNegative, rcode: domain.RCodeNXDomain}
	}

	if len(resp.Answers) > 0 {
		first := resp.Answers[0]
		if first.Type == domain.RRTypeCNAME && q.Type != domain.RRTypeCNAME && q.Type != domain.RRTypeANY && first.Text != "" {
			return classified{outcome: outcomeCname, answers: resp.Answers, cname: first.Text}
		}
		return classified{outcome: outcomeAnswer, answers: resp.Answers, rcode: domain.RCodeNoError}
	}

	if nsNames := authorityNSNames(resp); len(nsNames) > 0 {
		return classified{
			outcome: outcomeReferral,
			nsNames: nsNames,
			glue:    glueAddresses(resp, nsNames),
		}
	}

	if resp.Header.AA {
		return classified{outcome: outcomeNegative, rcode: domain.RCodeNoError}
	}
	return classified{outcome: outcomeUnusable}
}

// authorityNSNames extracts the delegated nameserver names from the
// authority section.
func authorityNSNames(resp domain.Message) []string {
	var names []string
	for _, rr := range resp.Authority {
		if rr.Type == domain.RRTypeNS && rr.Text != "" {
			names = append(names, utils.CanonicalDNSName(rr.Text))
		}
	}
	return names
}

// glueAddresses collects IPv4 glue from the additional section: A records
// whose owner name matches one of the delegated NS names.
func glueAddresses(resp domain.Message, nsNames []string) []string {
	wanted := make(map[string]struct{}, len(nsNames))
	for _, name := range nsNames {
		wanted[name] = struct{}{}
	}
	var ips []string
	for _, rr := range resp.Additional {
		if rr.Type != domain.RRTypeA || rr.Text == "" {
			continue
		}
		if _, ok := wanted[utils.CanonicalDNSName(rr.Name)]; ok {
			ips = append(ips, rr.Text)
		}
	}
	return ips
}
