package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

const demoDefinition = `<root BTCPP_format="4">
  <BehaviorTree ID="MainTree">
    <Sequence>
      <UpdatePosition/>
      <OpenDoor/>
      <PassThroughDoor/>
    </Sequence>
  </BehaviorTree>
</root>
`

// demoExecutor stands in for a behavior-tree runtime. It checks that the
// definition is well-formed XML and logs one line per node on each tick.
type demoExecutor struct {
	nodes []string
	ticks int
}

func (e *demoExecutor) Load(definition string) error {
	nodes, err := elementNames(definition)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("definition has no elements")
	}
	e.nodes = nodes
	e.ticks = 0
	log.Info().Int("nodes", len(nodes)).Msg("demo executor loaded definition")
	return nil
}

func (e *demoExecutor) Tick(ctx context.Context) error {
	e.ticks++
	for _, node := range e.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug().Int("tick", e.ticks).Str("node", node).Msg("demo executor tick")
	}
	log.Info().Int("tick", e.ticks).Msg("demo executor ticked")
	return nil
}

func (e *demoExecutor) Flush() error {
	log.Info().Int("ticks", e.ticks).Msg("demo executor flushed")
	e.ticks = 0
	return nil
}

func elementNames(definition string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(definition))
	var names []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			names = append(names, start.Name.Local)
		}
	}
}
