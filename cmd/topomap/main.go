// Copyright 2020 The Topomap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	cmd "github.com/qsgmanager/topomap/cmd/topomap/commands"
	"github.com/tav/golly/optparse"
)

func main() {
	var logo = `
  _                                        
 | |_ ___  _ __   ___  _ __ ___   __ _ _ __  
 | __/ _ \| '_ \ / _ \| '_ ' _ \ / _' | '_ \ 
 | || (_) | |_) | (_) | | | | | | (_| | |_) |
  \__\___/| .__/ \___/|_| |_| |_|\__,_| .__/ 
          |_|                         |_|    
`
	cmds := map[string]func([]string, string){
		"init":     cmd.InitCmd,
		"run":      cmd.RunCmd,
		"registry": cmd.RegistryCmd,
		"seed":     cmd.SeedCmd,
	}
	info := map[string]string{
		"init":     "Write a default topomap configuration file",
		"run":      "Run the topology synchroniser and its control surface",
		"registry": "Serve a SQLite node registry over HTTP",
		"seed":     "Load a YAML fleet description into a SQLite node registry",
	}
	optparse.Commands("topomap", "0.1.0", cmds, info, logo)
}
