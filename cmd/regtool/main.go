// Command regtool inspects register maps: it lists peripherals, decodes a
// register word into fields and builds words from field assignments.
//
//	regtool list
//	regtool decode USB.CTRLA 0x83
//	regtool encode USB.CTRLB 0 DADD=5 ADDEN=1
//	regtool --map board.yaml shell
package main

import (
	"log"
	"os"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("regtool: ")
	if err := newRootCmd(&options{}).Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
