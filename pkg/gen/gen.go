package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen",
	fx.Provide(NewSnowflakeNode),
)

type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode() (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(1) // nodeID 1, make configurable when we run more than one issuer
	if err != nil {
		return nil, err
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) GenerateID() snowflake.ID {
	return s.node.Generate()
}
