package contract

import (
	"context"
)

// Query decodes a QueryMsg and returns the JSON-encodable result.
func (r *Router) Query(ctx context.Context, raw []byte) (any, error) {
	var msg QueryMsg
	name, err := decode(raw, &msg)
	if err != nil {
		return nil, err
	}

	res, err := r.query(ctx, msg)
	if r.metrics != nil {
		r.metrics.RecordQuery(name, err)
	}
	if err != nil {
		r.logger.Debug("query failed", "query", name, "error", err)
		return nil, err
	}
	return res, nil
}

func (r *Router) query(ctx context.Context, msg QueryMsg) (any, error) {
	c := r.contract
	switch {
	case msg.GetConfig != nil:
		return c.Config(ctx)
	case msg.OwnerOf != nil:
		owner, err := c.OwnerOf(ctx, msg.OwnerOf.TokenID)
		if err != nil {
			return nil, err
		}
		return OwnerOfResponse{Owner: owner, Approvals: []Approval{}}, nil
	case msg.NumTokens != nil:
		n, err := c.NumTokens(ctx)
		if err != nil {
			return nil, err
		}
		return NumTokensResponse{Count: n}, nil
	case msg.GetMinterOwnership != nil:
		return c.MinterOwnership(ctx)
	case msg.GetCreatorOwnership != nil:
		return c.CreatorOwnership(ctx)
	case msg.NftInfo != nil:
		ext, err := c.NftInfo(ctx, msg.NftInfo.TokenID)
		if err != nil {
			return nil, err
		}
		return NftInfoResponse{Extension: ext}, nil
	case msg.Tokens != nil:
		q := msg.Tokens
		ids, err := c.Tokens(ctx, q.Owner, deref(q.StartAfter), deref(q.Limit))
		if err != nil {
			return nil, err
		}
		return TokensResponse{Tokens: ids}, nil
	case msg.AllTokens != nil:
		q := msg.AllTokens
		ids, err := c.AllTokens(ctx, deref(q.StartAfter), deref(q.Limit))
		if err != nil {
			return nil, err
		}
		return TokensResponse{Tokens: ids}, nil
	case msg.GetCollectionInfo != nil:
		return c.CollectionInfo(ctx)
	default:
		return c.ContractVersion(ctx)
	}
}
