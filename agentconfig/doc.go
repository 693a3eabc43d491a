// Package agentconfig builds agent trees from declarative YAML files.
//
// A config file describes one agent; sub-agents are either further config
// files (resolved relative to the referencing file) or agents registered in
// code with RegisterAgent:
//
//	agent_class: LlmAgent
//	name: assistant
//	model: gpt-4o-mini
//	instruction: Help the user with {topic?}.
//	tools:
//	  - name: exit_loop
//	sub_agents:
//	  - config_path: researcher.yaml
//	  - code: calculator
//
// FromConfig is the factory used by system agents and the CLI.
package agentconfig
