// Package sections loads palette sections from YAML or TOML files.
//
// A section file lists sections and their commands:
//
//	sections:
//	  - id: demo:abc
//	    heading: Alphabet
//	    items:
//	      - id: demo:abc:a
//	        title: A
//	        caption: The letter A
//	        args: [1, 2]
//	        lua: print(id, #args)
//
// Apply registers each item as a command.Command and adds each section to a
// palette.Store, returning an Applied that undoes both. A Watcher keeps a
// set of files applied and re-applies a file when it changes. A file that
// no longer parses or applies leaves its previous sections in place.
package sections
