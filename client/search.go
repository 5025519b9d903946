package client

import (
	"errors"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"

	"github.com/jpdeplaix/ldapdir/client/control"
	"github.com/jpdeplaix/ldapdir/client/filter"
	"github.com/jpdeplaix/ldapdir/entry"
)

// Search scopes.
const (
	ScopeBase     = 0
	ScopeOneLevel = 1
	ScopeSubtree  = 2
)

// ScopeMap maps scopes to descriptions.
var ScopeMap = map[int]string{
	ScopeBase:     "Base Object",
	ScopeOneLevel: "Single Level",
	ScopeSubtree:  "Whole Subtree",
}

// Alias dereference policies.
const (
	NeverDerefAliases   = 0
	DerefInSearching    = 1
	DerefFindingBaseObj = 2
	DerefAlways         = 3
)

// SearchRequest describes one search operation.
type SearchRequest struct {
	// BaseDN is the starting point of the search; empty for the root DSE
	BaseDN string
	// Scope is one of ScopeBase, ScopeOneLevel, ScopeSubtree
	Scope int
	// DerefAliases is the alias dereference policy
	DerefAliases int
	// SizeLimit caps the number of returned entries, 0 for no limit
	SizeLimit int
	// TimeLimit caps the server-side search time in seconds, 0 for no limit
	TimeLimit int
	// TypesOnly asks for attribute names without values
	TypesOnly bool
	// Filter is the RFC 4515 filter string; empty means (objectClass=*)
	Filter string
	// Attributes lists the attributes to return; empty means all
	Attributes []string
	// Controls are optional request controls
	Controls []control.Control
}

// NewSearchRequest returns a subtree search with sensible zero limits.
func NewSearchRequest(baseDN, filterStr string, attributes ...string) *SearchRequest {
	return &SearchRequest{
		BaseDN:       baseDN,
		Scope:        ScopeSubtree,
		DerefAliases: NeverDerefAliases,
		Filter:       filterStr,
		Attributes:   attributes,
	}
}

func (req *SearchRequest) AppendTo(envelope *ber.Packet) error {
	filterStr := req.Filter
	if filterStr == "" {
		filterStr = "(objectClass=*)"
	}
	f, err := filter.Compile(filterStr)
	if err != nil {
		return NewError(ErrorFilterCompile, err)
	}
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationSearchRequest, nil, "Search Request")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.BaseDN, "Base DN"))
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(req.Scope), "Scope"))
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(req.DerefAliases), "Deref Aliases"))
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(req.SizeLimit), "Size Limit"))
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(req.TimeLimit), "Time Limit"))
	pkt.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, req.TypesOnly, "Types Only"))
	pkt.AppendChild(f)
	attributes := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attributes")
	for _, attribute := range req.Attributes {
		attributes.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attribute, "Attribute"))
	}
	pkt.AppendChild(attributes)
	envelope.AppendChild(pkt)
	if len(req.Controls) > 0 {
		envelope.AppendChild(control.Encode(req.Controls...))
	}
	return nil
}

// SearchResult is a fully buffered search.
type SearchResult struct {
	// Entries holds the result entries, referrals included as ref entries
	Entries []*entry.Entry
	// Referrals lists the continuation reference URLs
	Referrals []string
	// Controls holds the response controls from the done message; for
	// SearchWithPaging, those of every page's done message in turn
	Controls []control.Control
}

// decodeSearchEntry converts a SearchResultEntry packet into an entry.
func decodeSearchEntry(packet *ber.Packet) (*entry.Entry, error) {
	op := packet.Children[1]
	if len(op.Children) < 2 {
		return nil, NewError(ResultDecodingError, errors.New("ldapdir: malformed search result entry"))
	}
	dn, _ := op.Children[0].Value.(string)
	var attrs []entry.Attribute
	for _, child := range op.Children[1].Children {
		if len(child.Children) < 2 {
			return nil, NewError(ResultDecodingError, errors.New("ldapdir: malformed search result attribute"))
		}
		name, _ := child.Children[0].Value.(string)
		attr := entry.Attribute{Name: name}
		for _, value := range child.Children[1].Children {
			attr.Vals = append(attr.Vals, string(value.ByteValue))
		}
		attrs = append(attrs, attr)
	}
	return entry.FromSearchEntry(dn, attrs), nil
}

// decodeSearchReference collects the URIs of a SearchResultReference.
func decodeSearchReference(packet *ber.Packet) []string {
	var urls []string
	for _, child := range packet.Children[1].Children {
		if url, ok := child.Value.(string); ok {
			urls = append(urls, url)
		}
	}
	return urls
}

// Search runs one buffered search on this connection.
func (cl *Conn) Search(req *SearchRequest) (*SearchResult, error) {
	id, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{}
	for {
		packet, err := cl.ReadResponse(id)
		if err != nil {
			return result, err
		}
		switch packet.Children[1].Tag {
		case ApplicationSearchResultEntry:
			e, err := decodeSearchEntry(packet)
			if err != nil {
				return result, err
			}
			result.Entries = append(result.Entries, e)
		case ApplicationSearchResultReference:
			urls := decodeSearchReference(packet)
			result.Referrals = append(result.Referrals, urls...)
			result.Entries = append(result.Entries, entry.FromReferral(urls))
		case ApplicationSearchResultDone:
			if err := GetLDAPError(packet); err != nil {
				return result, err
			}
			if len(packet.Children) == 3 {
				for _, child := range packet.Children[2].Children {
					c, err := control.Decode(child)
					if err != nil {
						return result, fmt.Errorf("failed to decode response control: %w", err)
					}
					result.Controls = append(result.Controls, c)
				}
			}
			return result, nil
		}
	}
}

// ErrEndOfResults is the terminal pull error of a Stream: the search is
// complete and the server reported success.
var ErrEndOfResults = NewError(ResultSuccess, errors.New("ldapdir: end of search results"))

// Stream is a live server-side search cursor. While it is open no other
// operation may run on the owning manager; drain it with Next or cancel it
// with Abandon.
type Stream struct {
	m    *Manager
	cl   *Conn
	id   int64
	done bool
}

// Next pulls the next result entry. The terminal error is ErrEndOfResults
// (result code success); any other error ends the stream too.
func (s *Stream) Next() (*entry.Entry, error) {
	if s.done {
		return nil, ErrEndOfResults
	}
	for {
		packet, err := s.cl.ReadResponse(s.id)
		if err != nil {
			s.close()
			return nil, err
		}
		switch packet.Children[1].Tag {
		case ApplicationSearchResultEntry:
			e, err := decodeSearchEntry(packet)
			if err != nil {
				s.close()
				return nil, err
			}
			return e, nil
		case ApplicationSearchResultReference:
			return entry.FromReferral(decodeSearchReference(packet)), nil
		case ApplicationSearchResultDone:
			s.close()
			if err := GetLDAPError(packet); err != nil {
				return nil, err
			}
			return nil, ErrEndOfResults
		}
	}
}

// Abandon cancels the search: an Abandon PDU is sent for the stream's
// message id and no further results are returned. Responses the server
// already put on the wire are dropped by the next read.
func (s *Stream) Abandon() error {
	if s.done {
		return nil
	}
	_, err := s.cl.Do(AbandonRequest{MessageID: s.id})
	s.close()
	return err
}

func (s *Stream) close() {
	if s.done {
		return
	}
	s.done = true
	if s.m != nil && s.m.busy == s {
		s.m.busy = nil
	}
}

// SearchWithPaging wraps Search with the simple paged results control,
// buffering all pages. A pagingSize of 0 means no limit to the server.
func (cl *Conn) SearchWithPaging(req *SearchRequest, pagingSize uint32) (*SearchResult, error) {
	var paging *control.Paging
	c := control.Find(req.Controls, control.OIDPaging)
	if c == nil {
		paging = control.NewPaging(pagingSize)
		req.Controls = append(req.Controls, paging)
	} else {
		cast, ok := c.(*control.Paging)
		if !ok {
			return nil, fmt.Errorf("expected paging control to be of type *control.Paging, got %v", c)
		}
		if cast.PagingSize != pagingSize {
			return nil, fmt.Errorf("paging size given in search request (%d) conflicts with size given in search call (%d)", cast.PagingSize, pagingSize)
		}
		paging = cast
	}
	result := new(SearchResult)
	for {
		page, err := cl.Search(req)
		if err != nil {
			return result, err
		}
		result.Entries = append(result.Entries, page.Entries...)
		result.Referrals = append(result.Referrals, page.Referrals...)
		result.Controls = append(result.Controls, page.Controls...)
		next := control.Find(page.Controls, control.OIDPaging)
		if next == nil {
			return result, nil
		}
		cookie := next.(*control.Paging).Cookie
		if len(cookie) == 0 {
			return result, nil
		}
		paging.SetCookie(cookie)
	}
}
